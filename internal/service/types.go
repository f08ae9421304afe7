package service

// MemoryInput is one encoder output attached to a request. Values
// holds time rows of model-width floats; Length, when positive, marks
// the valid prefix, with the rest treated as padding.
type MemoryInput struct {
	Values [][]float32 `json:"values"`
	Length int         `json:"length,omitempty"`
}

// DecodeRequest asks the server to generate tokens in a domain.
type DecodeRequest struct {
	Domain      int           `json:"domain"`
	Prompt      []int         `json:"prompt"`
	Steps       int           `json:"steps,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopK        int           `json:"top_k,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Seed        int64         `json:"seed,omitempty"`
	Memory      []MemoryInput `json:"memory,omitempty"`
}

// DecodeResponse is a completed generation, also retrievable later by id.
type DecodeResponse struct {
	ID              string  `json:"id"`
	Object          string  `json:"object"`
	CreatedAt       int64   `json:"created_at"`
	Domain          int     `json:"domain"`
	Prompt          []int   `json:"prompt"`
	Tokens          []int   `json:"tokens"`
	TokensGenerated int     `json:"tokens_generated"`
	DurationMS      int64   `json:"duration_ms"`
	TokensPerSec    float64 `json:"tokens_per_second"`
}

// ScoreRequest asks for the log-likelihood of a token sequence.
type ScoreRequest struct {
	Domain int           `json:"domain"`
	Tokens []int         `json:"tokens"`
	Memory []MemoryInput `json:"memory,omitempty"`
}

// ScoreResponse holds per-token and total log-likelihoods. Scores has
// one entry per token after the first.
type ScoreResponse struct {
	Domain int       `json:"domain"`
	Tokens []int     `json:"tokens"`
	Scores []float64 `json:"log_likelihoods"`
	Total  float64   `json:"total_log_likelihood"`
}

// ResponseError is the error payload body.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
