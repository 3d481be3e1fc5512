// Package ingest implements the HTTP ingest handler and its
// supporting payload parser, validator, and transform stages (§4.1,
// §4.2, §4.5 of the specification).
package ingest

import (
	"encoding/json"

	"github.com/overwatch/ingestion-gateway/internal/apperr"
	"github.com/overwatch/ingestion-gateway/internal/event"
)

// ParseResult is the output of ParsePayload: a sequence of raw SDK
// records plus optional batch metadata.
type ParseResult struct {
	Records  []event.SDKRecord
	Metadata *event.BatchMetadata
}

// rawRecord captures the known fields explicitly; decodeSingleRecord
// collects every other top-level field into the SDK record's Extras, so
// unknown top-level fields survive into the storage record's extras bag
// (§4.1: "the parser is lenient about unknown top-level fields").
type rawRecord struct {
	ID        string               `json:"id"`
	Type      event.Type           `json:"type"`
	Timestamp int64                `json:"timestamp"`
	SessionID string               `json:"sessionId"`
	URL       string               `json:"url"`
	UserAgent string               `json:"userAgent"`
	UserID    string               `json:"userId,omitempty"`
	Path      string               `json:"path,omitempty"`
	Referrer  string               `json:"referrer,omitempty"`
	Device    *event.DeviceInfo    `json:"device,omitempty"`
	Location  *event.LocationInfo `json:"location,omitempty"`
}

// ParsePayload decodes a raw request body into SDK records. Three
// shapes are accepted (§4.1):
//  1. a top-level JSON array of records;
//  2. an object with an "events" array and optional "metadata";
//  3. a single record object, detected by the presence of both "id"
//     and "type" at the top level.
//
// Any other shape fails with VALID_001.
func ParsePayload(body []byte) (*ParseResult, *apperr.AppError) {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, apperr.InvalidPayload("malformed JSON body")
	}

	switch v := probe.(type) {
	case []any:
		records, err := decodeRecords(body)
		if err != nil {
			return nil, err
		}
		return &ParseResult{Records: records}, nil

	case map[string]any:
		if _, hasID := v["id"]; hasID {
			if _, hasType := v["type"]; hasType {
				rec, err := decodeSingleRecord(body)
				if err != nil {
					return nil, err
				}
				return &ParseResult{Records: []event.SDKRecord{*rec}}, nil
			}
		}
		if _, hasEvents := v["events"]; hasEvents {
			return decodeEnvelope(body)
		}
		return nil, apperr.InvalidPayload("unrecognized payload shape")

	default:
		return nil, apperr.InvalidPayload("unrecognized payload shape")
	}
}

func decodeRecords(body []byte) ([]event.SDKRecord, *apperr.AppError) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, apperr.InvalidPayload("malformed event array")
	}
	out := make([]event.SDKRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeSingleRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

type envelope struct {
	Events   []json.RawMessage     `json:"events"`
	Metadata *event.BatchMetadata  `json:"metadata,omitempty"`
}

func decodeEnvelope(body []byte) (*ParseResult, *apperr.AppError) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.InvalidPayload("malformed events envelope")
	}
	records := make([]event.SDKRecord, 0, len(env.Events))
	for _, raw := range env.Events {
		rec, err := decodeSingleRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return &ParseResult{Records: records, Metadata: env.Metadata}, nil
}

func decodeSingleRecord(raw json.RawMessage) (*event.SDKRecord, *apperr.AppError) {
	var r rawRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, apperr.InvalidPayload("malformed event record")
	}

	var all map[string]json.RawMessage
	_ = json.Unmarshal(raw, &all)
	known := map[string]bool{
		"id": true, "type": true, "timestamp": true, "sessionId": true,
		"url": true, "userAgent": true, "userId": true, "path": true,
		"referrer": true, "device": true, "location": true,
	}
	extras := make(map[string]any)
	for k, v := range all {
		if known[k] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			extras[k] = decoded
		}
	}

	return &event.SDKRecord{
		ID:        r.ID,
		Type:      r.Type,
		Timestamp: r.Timestamp,
		SessionID: r.SessionID,
		URL:       r.URL,
		UserAgent: r.UserAgent,
		UserID:    r.UserID,
		Path:      r.Path,
		Referrer:  r.Referrer,
		Device:    r.Device,
		Location:  r.Location,
		Extras:    extras,
	}, nil
}
