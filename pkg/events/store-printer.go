package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// StorePrinterFunc returns a handler writing every store event to w as a
// small yaml document, for debugging the engine from the terminal.
func StorePrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewStoreChangedFromJSON(msg.Payload)
		if err != nil {
			return err
		}

		v_, err := yaml.Marshal(map[string]interface{}{
			"seq":   msg.Metadata.Get(MetadataSequenceNumber),
			"kind":  e.Kind,
			"scope": e.Scope.String(),
			"count": e.Count,
			"ids":   e.IDs,
		})
		if err != nil {
			return err
		}
		if name != "" {
			if _, err := fmt.Fprintf(w, "--- %s\n", name); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, "%s", v_)
		return err
	}
}
