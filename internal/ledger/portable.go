package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// exportDoc is the portable token layout. Subjects are an ordered
// array, not a map, so the display order survives a round trip.
type exportDoc struct {
	Version  int             `json:"version"`
	Subjects []exportSubject `json:"subjects"`
}

type exportSubject struct {
	Subject string  `json:"subject"`
	Entries []Entry `json:"entries"`
}

// Export serializes the full subject map to a single text-safe token
// (base64 over JSON). The token round-trips losslessly through Import:
// subject names, category codes, and descriptions including embedded
// whitespace are preserved, as is ordering.
func (l *Ledger) Export() (string, error) {
	l.mu.Lock()
	doc := exportDoc{Version: exportVersion}
	for _, subject := range l.order {
		entries := make([]Entry, len(l.subjects[subject]))
		copy(entries, l.subjects[subject])
		doc.Subjects = append(doc.Subjects, exportSubject{Subject: subject, Entries: entries})
	}
	l.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Import decodes a portable token and merges it into the ledger:
// entries for known subjects are appended, unknown subjects are added
// in the imported order. Merging rather than overwriting keeps a bad
// import from destroying the current ledger. On any decode failure the
// ledger is left untouched and ErrDecode is returned.
func (l *Ledger) Import(token string) error {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if doc.Version != exportVersion {
		return fmt.Errorf("%w: unsupported document version %d", ErrDecode, doc.Version)
	}
	for _, s := range doc.Subjects {
		if s.Subject == "" {
			return fmt.Errorf("%w: subject with empty name", ErrDecode)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range doc.Subjects {
		key := CanonicalSubject(s.Subject)
		for _, e := range s.Entries {
			l.appendLocked(key, e)
		}
	}
	return nil
}
