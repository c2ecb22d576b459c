package payment

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// EncodeMeta writes m as a JSON object.
func EncodeMeta(m Meta) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(m.OrderID)
	e.FieldStart("method")
	e.Str(m.Method)
	e.FieldStart("gateway")
	e.Str(m.Gateway)
	if len(m.Attempts) > 0 {
		e.FieldStart("attempts")
		e.ArrStart()
		for _, a := range m.Attempts {
			e.ObjStart()
			e.FieldStart("transaction_id")
			e.Str(a.TransactionID)
			e.FieldStart("status")
			e.Str(a.Status.String())
			e.FieldStart("at")
			e.Str(a.At.UTC().Format(time.RFC3339Nano))
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

// DecodeMeta parses metadata written by EncodeMeta. Unknown fields are
// ignored and an empty input yields a zero Meta.
func DecodeMeta(b []byte) (Meta, error) {
	var m Meta
	if len(b) == 0 {
		return m, nil
	}
	d := jx.DecodeBytes(b)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			m.OrderID, err = d.Str()
		case "method":
			m.Method, err = d.Str()
		case "gateway":
			m.Gateway, err = d.Str()
		case "attempts":
			err = d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAttempt(d)
				if err != nil {
					return err
				}
				m.Attempts = append(m.Attempts, a)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return Meta{}, errors.Wrap(err, "decode payment meta")
	}
	return m, nil
}

func decodeAttempt(d *jx.Decoder) (Attempt, error) {
	var a Attempt
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "transaction_id":
			v, err := d.Str()
			a.TransactionID = v
			return err
		case "status":
			v, err := d.Str()
			if err != nil {
				return err
			}
			a.Status = parseStatus(v)
			return nil
		case "at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			a.At, err = time.Parse(time.RFC3339Nano, v)
			return err
		default:
			return d.Skip()
		}
	})
	return a, err
}

func parseStatus(s string) Status {
	switch s {
	case "INITIATED":
		return StatusInitiated
	case "SUCCESS":
		return StatusSuccess
	case "FAILED":
		return StatusFailed
	default:
		return 0
	}
}
