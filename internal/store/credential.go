package store

import (
	"context"
	"iter"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Credential is a publisher account login. The password is stored sealed
// and only readable with the passphrase it was sealed with.
type Credential struct {
	ID          int64
	PublisherID int64
	Username    string
	URL         string
	Notes       string

	sealed string
}

// SetPassword seals plain and stores it on the row.
// An empty password clears the stored value.
func (c *Credential) SetPassword(s *Sealer, plain string) error {
	if plain == "" {
		c.sealed = ""
		return nil
	}
	sealed, err := s.Seal(plain)
	if err != nil {
		return err
	}
	c.sealed = sealed
	return nil
}

// Password opens the stored password. A row without a password returns "".
func (c *Credential) Password(s *Sealer) (string, error) {
	if c.sealed == "" {
		return "", nil
	}
	return s.Open(c.sealed)
}

// HasPassword reports whether a password is stored.
func (c *Credential) HasPassword() bool {
	return c.sealed != ""
}

var credentialMapping = database.Mapping[Credential]{
	Key:     "id",
	Columns: []string{"publisher_id", "username", "password", "url", "notes"},
	ID:      func(r *Credential) *int64 { return &r.ID },
	Values: func(r *Credential) []any {
		return []any{r.PublisherID, r.Username, r.sealed, r.URL, r.Notes}
	},
	Targets: func(r *Credential) []any {
		return []any{&r.PublisherID, &r.Username, &r.sealed, &r.URL, &r.Notes}
	},
}

// CredentialTable wraps panama.credential.
type CredentialTable struct {
	*database.TableBase[Credential]
}

// NewCredentialTable binds the credential table.
func NewCredentialTable(b database.Binding) *CredentialTable {
	return &CredentialTable{database.NewTableBase(b, ddl.MustGet("credential"), credentialMapping)}
}

// EnumerateForPublisher yields the logins of one publisher.
func (t *CredentialTable) EnumerateForPublisher(ctx context.Context, publisherID int64) iter.Seq2[*Credential, error] {
	return t.Enumerate(ctx, "publisher_id = ?", "username", publisherID)
}
