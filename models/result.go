package models

// ResultMetadata describes a produced conversion without affecting its bytes.
type ResultMetadata struct {
	OriginalSize  int    `json:"originalSize"`
	ConvertedSize int    `json:"convertedSize"`
	DurationMS    int64  `json:"durationMs"`
	Engine        string `json:"engine,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	Disposition   string `json:"disposition,omitempty"`
}

// ConversionResult is the terminal outcome of one job. Exactly one of
// {Success with Data, !Success with Error} holds. Immutable once produced.
type ConversionResult struct {
	Success     bool           `json:"success"`
	Data        []byte         `json:"data,omitempty"`
	ContentHash string         `json:"contentHash,omitempty"`
	Metadata    ResultMetadata `json:"metadata"`
	Cached      bool           `json:"cached"`
	Error       string         `json:"error,omitempty"`
}

// FailedResult builds the failure shape for a job, preserving the content
// hash so callers can still correlate the attempt.
func FailedResult(hash string, originalSize int, reason string) *ConversionResult {
	return &ConversionResult{
		Success:     false,
		ContentHash: hash,
		Metadata:    ResultMetadata{OriginalSize: originalSize},
		Error:       reason,
	}
}
