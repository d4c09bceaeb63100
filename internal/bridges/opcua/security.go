package opcua

import (
	"context"
	"fmt"
	"os"

	gopcua "github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/plcwire/uabridge/internal/infrastructure/config"
)

// securityPolicyPrefix is the URI namespace for OPC UA security policies.
const securityPolicyPrefix = "http://opcfoundation.org/UA/SecurityPolicy#"

// securityModeFromString maps config strings to wire values.
func securityModeFromString(mode string) (ua.MessageSecurityMode, error) {
	switch mode {
	case "None":
		return ua.MessageSecurityModeNone, nil
	case "Sign":
		return ua.MessageSecurityModeSign, nil
	case "SignAndEncrypt":
		return ua.MessageSecurityModeSignAndEncrypt, nil
	default:
		return ua.MessageSecurityModeInvalid, fmt.Errorf("%w: unknown mode %q", ErrSecurityConfig, mode)
	}
}

// buildClientOptions discovers the server's endpoints and assembles the
// client options for the configured security settings.
//
// Endpoint selection is deliberate rather than "most secure wins": the
// operator configured an exact policy and mode, and connecting with
// anything else would silently change the security posture.
func buildClientOptions(ctx context.Context, cfg config.OPCUAConfig) ([]gopcua.Option, error) {
	mode, err := securityModeFromString(cfg.SecurityMode)
	if err != nil {
		return nil, err
	}

	if cfg.SecurityMode != "None" {
		if err := checkPKIFiles(cfg.CertFile, cfg.KeyFile); err != nil {
			return nil, err
		}
	}

	endpoints, err := gopcua.GetEndpoints(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: discovering endpoints: %w", ErrConnectFailed, err)
	}

	ep := pickEndpoint(endpoints, cfg.SecurityPolicy, mode)
	if ep == nil {
		return nil, fmt.Errorf("%w: policy %s mode %s at %s",
			ErrNoMatchingEndpoint, cfg.SecurityPolicy, cfg.SecurityMode, cfg.Endpoint)
	}

	tokenType := ua.UserTokenTypeAnonymous
	if cfg.Username != "" {
		tokenType = ua.UserTokenTypeUserName
	}

	opts := []gopcua.Option{
		gopcua.SecurityFromEndpoint(ep, tokenType),
	}

	if cfg.Username != "" {
		opts = append(opts, gopcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, gopcua.AuthAnonymous())
	}

	if cfg.SecurityMode != "None" {
		opts = append(opts,
			gopcua.CertificateFile(cfg.CertFile),
			gopcua.PrivateKeyFile(cfg.KeyFile),
		)
	}

	if cfg.ApplicationURI != "" {
		opts = append(opts, gopcua.ApplicationURI(cfg.ApplicationURI))
	}

	return opts, nil
}

// pickEndpoint returns the server endpoint matching the exact policy and
// mode, or nil if the server offers none.
func pickEndpoint(endpoints []*ua.EndpointDescription, policy string, mode ua.MessageSecurityMode) *ua.EndpointDescription {
	wantURI := securityPolicyPrefix + policy
	for _, ep := range endpoints {
		if ep.SecurityPolicyURI == wantURI && ep.SecurityMode == mode {
			return ep
		}
	}
	return nil
}

// checkPKIFiles verifies the certificate and key exist before dialing,
// turning a cryptic handshake failure into a clear startup error.
func checkPKIFiles(certFile, keyFile string) error {
	if _, err := os.Stat(certFile); err != nil {
		return fmt.Errorf("%w: certificate %s: %w", ErrSecurityConfig, certFile, err)
	}
	if _, err := os.Stat(keyFile); err != nil {
		return fmt.Errorf("%w: private key %s: %w", ErrSecurityConfig, keyFile, err)
	}
	return nil
}
