package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Servers builds the pion ICE server list. TURN urls share one credential
// pair, which must be set.
func (c ICEConfig) Servers() ([]webrtc.ICEServer, error) {
	stun := trimAll(c.StunURLs)
	turn := trimAll(c.TurnURLs)

	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		server := webrtc.ICEServer{URLs: stun}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("ice.stun_urls: %w", err)
		}
		servers = append(servers, server)
	}

	if len(turn) > 0 {
		username := strings.TrimSpace(c.TurnUsername)
		credential := strings.TrimSpace(c.TurnCredential)
		if username == "" || credential == "" {
			return nil, errors.New("ice.turn_username/ice.turn_credential: both must be set when ice.turn_urls is set")
		}
		server := webrtc.ICEServer{
			URLs:           turn,
			Username:       username,
			Credential:     credential,
			CredentialType: webrtc.ICECredentialTypePassword,
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("ice.turn_urls: %w", err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		// Env overrides arrive as one comma separated value.
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, url := range server.URLs {
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			needsCreds = true
		}
	}

	if needsCreds {
		if server.Username == "" {
			return errors.New("turn urls require username")
		}
		if cred, ok := server.Credential.(string); !ok || cred == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}

func isAllowedICEScheme(url string) bool {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
