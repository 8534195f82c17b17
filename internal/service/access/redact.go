package access

import (
	"sort"

	"github.com/jwalitptl/medrecord-api/internal/model"
)

var (
	nurseView   = []string{"type", "timestamp", "summary", "vitals", "instructions", "medications"}
	patientView = []string{"type", "timestamp", "summary", "instructions", "medications", "reportUrl"}
)

// Redact projects a decrypted payload for the viewer's role. The result
// never shares top-level storage with payload.
func Redact(role model.Role, recordType model.RecordType, payload model.JSONMap) model.JSONMap {
	switch role {
	case model.RoleDoctor:
		return project(payload, nil)
	case model.RoleNurse:
		if recordType == model.RecordVitals {
			return project(payload, nil)
		}
		return project(payload, nurseView)
	case model.RolePatient:
		return project(payload, patientView)
	}
	return model.JSONMap{}
}

// project copies keys from src. A nil keep copies everything.
func project(src model.JSONMap, keep []string) model.JSONMap {
	if keep == nil {
		out := make(model.JSONMap, len(src))
		for k, v := range src {
			out[k] = v
		}
		return out
	}

	out := make(model.JSONMap, len(keep))
	for _, k := range keep {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}
	return out
}

// ChangedKeys lists the payload keys an update touches, sorted.
func ChangedKeys(payload model.JSONMap) []string {
	keys := payload.Keys()
	sort.Strings(keys)
	return keys
}
