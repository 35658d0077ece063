// Package apitoken manages the API tokens users authenticate with.
//
// A token's id is the secret itself. Lookups of an empty or unknown id
// yield nil rather than an error.
package apitoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"datacatalog/pkg/config"
	"datacatalog/pkg/model"
	"datacatalog/pkg/store"
)

// DefaultName is given to tokens created without a name.
const DefaultName = "Unnamed"

// MakeToken returns nbytes of crypto/rand output, URL-safe base64 encoded
// without padding. Non-positive nbytes uses the default length.
func MakeToken(nbytes int) (string, error) {
	if nbytes <= 0 {
		nbytes = config.DefaultAPITokenNBytes
	}
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Tokens binds token operations to one session.
type Tokens struct {
	sess *store.Session
	cfg  *config.Config
}

func New(sess *store.Session, cfg *config.Config) *Tokens {
	return &Tokens{sess: sess, cfg: cfg}
}

// Create issues a token for userID sized by api_token.nbytes.
func (t *Tokens) Create(ctx context.Context, userID, name string, commit bool) (*model.APIToken, error) {
	id, err := MakeToken(t.cfg.APITokenNBytes())
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultName
	}

	tok := &model.APIToken{ID: id, Name: name, UserID: userID}
	if err := t.sess.CreateAPIToken(ctx, tok); err != nil {
		return nil, err
	}
	if commit {
		if err := t.sess.Commit(); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// Get returns the token or nil when id is empty or unknown.
func (t *Tokens) Get(ctx context.Context, id string) (*model.APIToken, error) {
	if id == "" {
		return nil, nil
	}
	tok, err := t.sess.GetAPIToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Revoke deletes and commits the token, reporting whether it existed.
func (t *Tokens) Revoke(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	deleted, err := t.sess.DeleteAPIToken(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if err := t.sess.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Touch records that tok was just used.
func (t *Tokens) Touch(ctx context.Context, tok *model.APIToken, commit bool) error {
	now := t.sess.Now()
	if err := t.sess.SetAPITokenLastAccess(ctx, tok.ID, now); err != nil {
		return err
	}
	tok.LastAccess = &now
	if commit {
		return t.sess.Commit()
	}
	return nil
}

// SetExtra stores value under key in the token's plugin extras. The
// extras map is copied and replaced as a whole, never edited in place.
func (t *Tokens) SetExtra(ctx context.Context, tok *model.APIToken, key string, value any, commit bool) error {
	extras := make(map[string]any, len(tok.PluginExtras)+1)
	for k, v := range tok.PluginExtras {
		extras[k] = v
	}
	extras[key] = value

	if err := t.sess.ReplaceAPITokenExtras(ctx, tok.ID, extras); err != nil {
		return err
	}
	tok.PluginExtras = extras
	if commit {
		return t.sess.Commit()
	}
	return nil
}

func (t *Tokens) ListForUser(ctx context.Context, userID string) ([]model.APIToken, error) {
	return t.sess.UserAPITokens(ctx, userID)
}
