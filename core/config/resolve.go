package config

import (
	"context"

	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

// Resolved is everything the bundler needs at startup.
type Resolved struct {
	Config   *BundlerConfig
	Endpoint *Endpoint
	Identity *signer.Identity
}

// Close releases the network endpoint.
func (r *Resolved) Close() {
	r.Endpoint.Close()
}

// Resolve merges defaults, the config file named by raw["config"] and the
// recognized entries of raw, then connects to the network and derives the
// signing identity from the configured mnemonic file.
func Resolve(ctx context.Context, raw map[string]any, rc ResolveContext) (*Resolved, error) {
	log := logger.EnsureLogger(rc.Logger)

	overrides := ExtractOverrides(raw)
	configPath, _ := raw[ConfigFileOption].(string)
	fileLayer, err := LoadFileLayer(configPath)
	if err != nil {
		return nil, err
	}

	defaults := rc.Defaults
	if defaults == nil {
		defaults = Defaults()
	}
	cfg, err := MergeLayers(defaults, fileLayer, overrides)
	if err != nil {
		return nil, err
	}
	// the mnemonic key is a path, the phrase itself is never logged
	log.Info("Merged configuration", "config", cfg, "configFile", configPath)

	endpoint, err := ResolveNetworkEndpoint(ctx, cfg.Network, rc)
	if err != nil {
		return nil, err
	}

	identity, err := signer.DeriveSigningIdentity(cfg.Mnemonic, endpoint.Client())
	if err != nil {
		endpoint.Close()
		return nil, err
	}
	log.Info("Signing identity ready", "address", identity.Address().Hex(), "network", cfg.Network, "inProcess", endpoint.InProcess)

	return &Resolved{Config: cfg, Endpoint: endpoint, Identity: identity}, nil
}
