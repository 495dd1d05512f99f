// Package config provides application configuration management.
//
// The config package loads the server, sandbox, language runtime, logging and
// Ollama proxy settings from a YAML file with viper. Every key can be
// overridden with an EXECBOX_ environment variable (dots become underscores),
// and a .env file in the working directory is applied first.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Execution timeout: %s\n", cfg.GetTimeout())
package config
