package events

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/messages"
)

const (
	// TopicStore carries StoreChanged events.
	TopicStore = "chatsync.store"

	MetadataSequenceNumber = "sequence_number"
)

type StoreChangeKind string

const (
	StoreReplaced StoreChangeKind = "replaced"
	StoreAppended StoreChangeKind = "appended"
	StoreRemoved  StoreChangeKind = "removed"
	StoreCleared  StoreChangeKind = "cleared"
)

// StoreChanged is published after every message store mutation.
type StoreChanged struct {
	Kind  StoreChangeKind `json:"kind"`
	Scope messages.Scope  `json:"scope"`
	// Count is the number of records in the store after the mutation.
	Count int      `json:"count"`
	IDs   []string `json:"ids,omitempty"`
}

func NewStoreChangedFromJSON(b []byte) (*StoreChanged, error) {
	ret := &StoreChanged{}
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrap(err, "could not decode store event")
	}
	switch ret.Kind {
	case StoreReplaced, StoreAppended, StoreRemoved, StoreCleared:
	default:
		return nil, errors.Errorf("unknown store event kind %q", ret.Kind)
	}
	return ret, nil
}
