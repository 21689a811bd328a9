package api

// LLMProvider contains the configuration of an OpenAI compatible chat completion
// provider. It is used both for judging and for generating persona messages.
//
// Example YAML:
//
//	llm:
//	  default:
//	    provider_id: openai
//	    base_url: "https://api.openai.com/v1"
//	    model: "gpt-4o-mini"
//	    requests_per_second: 5
//	    burst: 10
//	  projects:
//	    acme:
//	      provider_id: local
//	      base_url: "http://localhost:11434/v1"
//	      model: "llama3"
type LLMProvider struct {
	ProviderID        string  `mapstructure:"provider_id" yaml:"provider_id" json:"provider_id"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model             string  `mapstructure:"model" yaml:"model" json:"model"`
	JudgeModel        string  `mapstructure:"judge_model" yaml:"judge_model" json:"judge_model,omitempty"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second,omitempty"`
	Burst             int     `mapstructure:"burst" yaml:"burst" json:"burst,omitempty"`
}
