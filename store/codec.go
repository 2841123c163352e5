package store

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const yamlIndent = 2

type document struct {
	Credentials   credentialsSection    `yaml:"credentials"`
	Cookie        CookiePolicy          `yaml:"cookie"`
	Preauthorized *preauthorizedSection `yaml:"preauthorized,omitempty"`
}

type credentialsSection struct {
	Usernames map[string]UserRecord `yaml:"usernames"`
}

type preauthorizedSection struct {
	Emails []string `yaml:"emails"`
}

// Marshal renders the store in the credential file layout. Map keys are
// emitted in sorted order so the output is stable across round trips.
func Marshal(s *CredentialStore) ([]byte, error) {
	doc := document{
		Credentials: credentialsSection{Usernames: s.users},
		Cookie:      s.cookie,
	}
	if doc.Credentials.Usernames == nil {
		doc.Credentials.Usernames = map[string]UserRecord{}
	}
	if len(s.preauthorized) > 0 {
		doc.Preauthorized = &preauthorizedSection{Emails: s.preauthorized}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(yamlIndent)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("store: encode credentials: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("store: encode credentials: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a credential file. An empty document, a missing
// credentials section and a null usernames mapping all yield a store with
// no users.
func Unmarshal(data []byte) (*CredentialStore, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: decode credentials: %w", err)
	}

	users := doc.Credentials.Usernames
	if users == nil {
		users = map[string]UserRecord{}
	}
	for name := range users {
		if name == "" {
			return nil, fmt.Errorf("store: decode credentials: empty username")
		}
	}

	s := &CredentialStore{
		users:  users,
		cookie: doc.Cookie,
	}
	if doc.Preauthorized != nil && len(doc.Preauthorized.Emails) > 0 {
		s.preauthorized = doc.Preauthorized.Emails
	}
	return s, nil
}
