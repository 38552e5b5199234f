package ingestion

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/your-org/tourpipe/internal/archival"
)

// ErrMalformedTrigger reports a payload that cannot be dispatched.
var ErrMalformedTrigger = errors.New("malformed trigger payload")

// ActionDeleteTour selects the archival workflow on a direct invocation.
const ActionDeleteTour = "delete_tour"

// UploadEvent names the object that triggered an ingestion.
type UploadEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Trigger is the parsed form of an invocation payload. It is one of
// IngestionTrigger, ArchivalTrigger, IgnoredEvent or Unrecognized.
type Trigger interface {
	isTrigger()
}

// IngestionTrigger asks for an uploaded archive to be processed.
type IngestionTrigger struct {
	Event UploadEvent
	// Records counts the notification records in the envelope; only the
	// first is processed.
	Records int
}

// ArchivalTrigger asks for a published tour to be archived.
type ArchivalTrigger struct {
	Request archival.Request
}

// IgnoredEvent is a bucket notification for something other than a new
// object, such as the removal the pipeline itself causes when it moves an
// upload out of the incoming prefix.
type IgnoredEvent struct {
	EventName string
	Event     UploadEvent
}

// Unrecognized is valid JSON of an unknown shape.
type Unrecognized struct {
	Raw json.RawMessage
}

func (IngestionTrigger) isTrigger() {}
func (ArchivalTrigger) isTrigger()  {}
func (IgnoredEvent) isTrigger()     {}
func (Unrecognized) isTrigger()     {}

// envelope is the union of every accepted payload shape.
type envelope struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
	// EventName is set at the top level by MinIO's queue targets.
	EventName string `json:"EventName"`

	Action   string `json:"action"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	TourName string `json:"tourName"`

	Body            *string `json:"body"`
	IsBase64Encoded bool    `json:"isBase64Encoded"`
}

// ParseTrigger resolves raw into a Trigger. Proxy-wrapped bodies are
// unwrapped once.
func ParseTrigger(raw []byte) (Trigger, error) {
	return parseTrigger(raw, true)
}

func parseTrigger(raw []byte, allowWrapped bool) (Trigger, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedTrigger)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}

	switch {
	case len(env.Records) > 0:
		rec := env.Records[0]
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: object key: %v", ErrMalformedTrigger, err)
		}
		if rec.S3.Bucket.Name == "" || key == "" {
			return nil, fmt.Errorf("%w: record without bucket or key", ErrMalformedTrigger)
		}
		ev := UploadEvent{Bucket: rec.S3.Bucket.Name, Key: key}
		name := rec.EventName
		if name == "" {
			name = env.EventName
		}
		if name != "" && !strings.Contains(name, "ObjectCreated:") {
			return IgnoredEvent{EventName: name, Event: ev}, nil
		}
		return IngestionTrigger{Event: ev, Records: len(env.Records)}, nil

	case env.Action != "":
		if env.Action != ActionDeleteTour {
			return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedTrigger, env.Action)
		}
		if env.Bucket == "" || strings.TrimSpace(env.TourName) == "" {
			return nil, fmt.Errorf("%w: %s requires bucket and tourName", ErrMalformedTrigger, ActionDeleteTour)
		}
		return ArchivalTrigger{Request: archival.Request{Bucket: env.Bucket, TourFolderName: env.TourName}}, nil

	case env.Key != "" || env.Bucket != "":
		if env.Bucket == "" || env.Key == "" {
			return nil, fmt.Errorf("%w: direct invocation requires bucket and key", ErrMalformedTrigger)
		}
		return IngestionTrigger{Event: UploadEvent{Bucket: env.Bucket, Key: env.Key}, Records: 1}, nil

	case env.Body != nil && allowWrapped:
		inner := []byte(*env.Body)
		if env.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(*env.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: body: %v", ErrMalformedTrigger, err)
			}
			inner = decoded
		}
		return parseTrigger(inner, false)
	}

	return Unrecognized{Raw: json.RawMessage(raw)}, nil
}
