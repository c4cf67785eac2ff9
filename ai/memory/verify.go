package memory

import (
	"context"
	"fmt"
)

// IntegrityError reports a chunk whose stored fingerprint no longer
// matches its stored text.
type IntegrityError struct {
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("memory integrity violation for chunk %s: %s", e.Key, e.Detail)
}

// VerifyReport summarizes an integrity sweep over the stored chunks.
type VerifyReport struct {
	Total   int               `json:"total"`
	Valid   int               `json:"valid"`
	Invalid int               `json:"invalid"`
	Errors  []*IntegrityError `json:"errors,omitempty"`
}

// Verify recomputes the fingerprint of one stored chunk from its stored
// text and checks it against the stored fingerprint. The check reads the
// store directly so out-of-band corruption is visible.
func (e *Engine) Verify(ctx context.Context, key string) error {
	chunk, err := e.chunks.Get(ctx, key)
	if err != nil {
		return err
	}
	if ComputeFingerprint(chunk.Text).Hex() != chunk.Fingerprint {
		return &IntegrityError{Key: key, Detail: "fingerprint mismatch"}
	}
	return nil
}

// VerifyAll sweeps every stored chunk and reports how many pass the
// fingerprint check.
func (e *Engine) VerifyAll(ctx context.Context) (*VerifyReport, error) {
	all, err := e.chunks.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Total: len(all)}
	for _, chunk := range all {
		if _, err := ParseFingerprint(chunk.Fingerprint); err != nil {
			report.Invalid++
			report.Errors = append(report.Errors, &IntegrityError{Key: chunk.Key, Detail: err.Error()})
			continue
		}
		if ComputeFingerprint(chunk.Text).Hex() != chunk.Fingerprint {
			report.Invalid++
			report.Errors = append(report.Errors, &IntegrityError{Key: chunk.Key, Detail: "fingerprint mismatch"})
			continue
		}
		report.Valid++
	}
	return report, nil
}
