package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8087
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/kioku/data/library"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kioku/data/indices/bleve"
	}
	if cfg.Storage.RegistryDir == "" {
		cfg.Storage.RegistryDir = "/usr/local/var/kioku/data/registries"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 2
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.2"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.9
	}
	if cfg.Chunking.TextSize == 0 {
		cfg.Chunking.TextSize = 1000
	}
	if cfg.Chunking.TextOverlap == 0 {
		cfg.Chunking.TextOverlap = 200
	}
	if cfg.Chunking.CodeLines == 0 {
		cfg.Chunking.CodeLines = 80
	}
	if cfg.Chunking.CodeOverlap == 0 {
		cfg.Chunking.CodeOverlap = 10
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 12
	}
	if cfg.Retrieval.OverFetch == 0 {
		cfg.Retrieval.OverFetch = 30
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".txt", ".md", ".rst", ".rtf", ".pdf", ".docx", ".odt", ".xlsx"}
	}
	// Enabled defaults to true when unset (nil).
	if cfg.Inbox.Path != "" && cfg.Inbox.Enabled == nil {
		t := true
		cfg.Inbox.Enabled = &t
	}
}
