package google

// Wire shapes of the generateContent API. Field names are part of the
// contract; omitempty keeps unset blocks out of the request body.

type request struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	SafetySettings    []safetySetting  `json:"safetySettings"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	Tools             []tool           `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
	FileData   *fileData   `json:"file_data,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type tool struct {
	CodeExecution         *struct{}        `json:"code_execution,omitempty"`
	GoogleSearchRetrieval *searchRetrieval `json:"google_search_retrieval,omitempty"`
}

type searchRetrieval struct {
	DynamicRetrievalConfig dynamicRetrievalConfig `json:"dynamic_retrieval_config"`
}

type dynamicRetrievalConfig struct {
	Mode             string  `json:"mode"`
	DynamicThreshold float64 `json:"dynamic_threshold"`
}

type response struct {
	Error          *apiError       `json:"error,omitempty"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	Candidates     []candidate     `json:"candidates,omitempty"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type promptFeedback struct {
	BlockReason   string         `json:"blockReason"`
	SafetyRatings []safetyRating `json:"safetyRatings"`
}

type candidate struct {
	Content           content            `json:"content"`
	FinishReason      string             `json:"finishReason"`
	SafetyRatings     []safetyRating     `json:"safetyRatings"`
	CitationMetadata  *citationMetadata  `json:"citationMetadata"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

type citationMetadata struct {
	CitationSources []citationSource `json:"citationSources"`
}

type citationSource struct {
	URI string `json:"uri"`
}

type groundingMetadata struct {
	WebSearchQueries []string         `json:"webSearchQueries"`
	GroundingChunks  []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
