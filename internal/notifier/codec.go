package notifier

import (
	model "bidding-core/internal/models"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("notifier: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("notifier: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeEvent serializes an event for a pub/sub transport
func EncodeEvent(event model.AuctionEvent) ([]byte, error) {
	data, err := encMode.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event for auction %s: %w", event.Type, event.AuctionID, err)
	}
	return data, nil
}

// DecodeEvent parses an event received from a pub/sub transport
func DecodeEvent(data []byte) (model.AuctionEvent, error) {
	var event model.AuctionEvent
	if err := decMode.Unmarshal(data, &event); err != nil {
		return model.AuctionEvent{}, fmt.Errorf("decode auction event: %w", err)
	}
	if event.AuctionID == "" {
		return model.AuctionEvent{}, fmt.Errorf("decode auction event: missing auction id")
	}
	return event, nil
}
