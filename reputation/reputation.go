// Package reputation wraps the Google Safe Browsing v4 lookup used to
// reject malware targets at admission time.
package reputation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/lnkr-app/lnkr/shared"
	"go.uber.org/zap"
)

const lookupURL = "https://safebrowsing.googleapis.com/v4/threatMatches:find?key=%s"

type threatEntry struct {
	URL string `json:"url"`
}

type lookupRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type lookupResponse struct {
	Matches []map[string]interface{} `json:"matches"`
}

type Checker struct {
	APIKey   string
	ClientID string
	client   *req.Client
	logger   *shared.Logger
}

func NewChecker(apiKey string, defaultDomain string, logger *shared.Logger) *Checker {
	clientID := strings.ReplaceAll(strings.ToLower(defaultDomain), ".", "")
	return &Checker{
		APIKey:   apiKey,
		ClientID: clientID,
		client:   req.C().SetTimeout(5 * time.Second).SetUserAgent("lnkr").SetCommonHeader("Content-Type", "application/json"),
		logger:   logger,
	}
}

// Enabled reports whether a Safe Browsing key is configured. Without a key
// the malware and cooldown checks are skipped entirely.
func (c *Checker) Enabled() bool {
	return c.APIKey != ""
}

// CheckMalware asks Safe Browsing whether the target matches a known
// threat. Transport errors and timeouts fail open: an unreachable
// reputation service must not block link creation.
func (c *Checker) CheckMalware(ctx context.Context, target string) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	var body lookupRequest
	body.Client.ClientID = c.ClientID
	body.Client.ClientVersion = "1.0.0"
	body.ThreatInfo.ThreatTypes = []string{
		"THREAT_TYPE_UNSPECIFIED",
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM", "PLATFORM_TYPE_UNSPECIFIED"}
	body.ThreatInfo.ThreatEntryTypes = []string{"EXECUTABLE", "URL", "THREAT_ENTRY_TYPE_UNSPECIFIED"}
	body.ThreatInfo.ThreatEntries = []threatEntry{{URL: target}}

	var result lookupResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetSuccessResult(&result).
		Post(fmt.Sprintf(lookupURL, c.APIKey))
	if err != nil {
		c.logger.Warn("SafeBrowsingUnreachable", zap.String("target", target), zap.Error(err))
		return false, nil
	}
	if resp.GetStatusCode() >= 400 {
		c.logger.Warn("SafeBrowsingError", zap.String("target", target), zap.Int("code", resp.GetStatusCode()))
		return false, nil
	}

	return len(result.Matches) > 0, nil
}
