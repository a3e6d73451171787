package config

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Timeout == nil {
		timeout := c.AI.Timeout
		opCfg.Timeout = &timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxAttempts == nil {
		attempts := c.AI.MaxAttempts
		opCfg.MaxAttempts = &attempts
	}
	if opCfg.Temperature == nil {
		temperature := c.AI.Temperature
		opCfg.Temperature = &temperature
	}
}

// GetAnalyzeConfig returns the AI configuration for project analysis with fallback to global config
func (c *Config) GetAnalyzeConfig() OperationAIConfig {
	config := c.AI.Analyze
	c.applyOperationDefaults(&config)
	return config
}

// GetScoreConfig returns the AI configuration for resume scoring with fallback to global config
func (c *Config) GetScoreConfig() OperationAIConfig {
	config := c.AI.Score
	c.applyOperationDefaults(&config)
	return config
}

// GetOutreachConfig returns the AI configuration for outreach messages with fallback to global config
func (c *Config) GetOutreachConfig() OperationAIConfig {
	config := c.AI.Outreach
	c.applyOperationDefaults(&config)
	return config
}

// operations lists every per-operation block for code that walks them all.
func (c *Config) operations() map[string]*OperationAIConfig {
	return map[string]*OperationAIConfig{
		"analyze":  &c.AI.Analyze,
		"score":    &c.AI.Score,
		"outreach": &c.AI.Outreach,
	}
}
