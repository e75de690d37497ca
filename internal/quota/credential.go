// internal/quota/credential.go
package quota

import (
	"encoding/json"
	"fmt"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

// Credential holds the two values the usage endpoint needs.
type Credential struct {
	AccessToken string
	AccountID   string
}

type authFile struct {
	APIKey *string `json:"OPENAI_API_KEY"`
	Tokens *struct {
		AccessToken *string `json:"access_token"`
		AccountID   *string `json:"account_id"`
	} `json:"tokens"`
}

// ParseCredential extracts the bearer token and account id from an auth.json
// blob. The blob is otherwise opaque.
func ParseCredential(blob []byte) (Credential, error) {
	var f authFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return Credential{}, apperr.New(apperr.KindCredentialMissing, "parse credential",
			"The stored auth.json is not valid JSON. Run 'codex login' and re-add the account.", err)
	}
	if f.Tokens == nil || f.Tokens.AccessToken == nil || f.Tokens.AccountID == nil ||
		*f.Tokens.AccessToken == "" || *f.Tokens.AccountID == "" {
		return Credential{}, apperr.New(apperr.KindCredentialMissing, "parse credential",
			"Only ChatGPT OAuth logins report usage. Run 'codex login' and re-add the account.",
			fmt.Errorf("missing access_token or account_id"))
	}
	return Credential{AccessToken: *f.Tokens.AccessToken, AccountID: *f.Tokens.AccountID}, nil
}
