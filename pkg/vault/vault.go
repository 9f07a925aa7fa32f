package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ajitpratap0/relay/pkg/config/envsubst"
	"github.com/ajitpratap0/relay/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Vault is a key-value store from credential id to Credential.
// Implementations must be safe for concurrent use.
type Vault interface {
	// Get returns a copy of the credential stored under id
	Get(ctx context.Context, id string) (*Credential, error)
	// Put stores cred under cred.ID, replacing any previous entry
	Put(ctx context.Context, cred *Credential) error
	// Update atomically applies fn to the credential stored under id.
	// fn receives a copy; the entry is replaced only if fn returns nil.
	Update(ctx context.Context, id string, fn func(*Credential) error) error
}

// NotFound builds the error returned for unknown ids
func NotFound(id string) error {
	return errors.New(errors.ErrorTypeCredentialsNotFound, fmt.Sprintf("credential %q not found", id)).
		WithDetail("credential", id)
}

// MemoryVault is an in-process Vault guarded by a mutex
type MemoryVault struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryVault creates a vault seeded with creds
func NewMemoryVault(creds ...*Credential) *MemoryVault {
	v := &MemoryVault{creds: make(map[string]*Credential, len(creds))}
	for _, c := range creds {
		v.creds[c.ID] = c.Clone()
	}
	return v
}

// Get implements Vault
func (v *MemoryVault) Get(_ context.Context, id string) (*Credential, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	c, ok := v.creds[id]
	if !ok {
		return nil, NotFound(id)
	}
	return c.Clone(), nil
}

// Put implements Vault
func (v *MemoryVault) Put(_ context.Context, cred *Credential) error {
	if cred == nil || cred.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "credential id is required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds[cred.ID] = cred.Clone()
	return nil
}

// Update implements Vault
func (v *MemoryVault) Update(_ context.Context, id string, fn func(*Credential) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.creds[id]
	if !ok {
		return NotFound(id)
	}
	updated := c.Clone()
	if err := fn(updated); err != nil {
		return err
	}
	updated.ID = id
	v.creds[id] = updated
	return nil
}

// IDs returns the stored ids in sorted order
func (v *MemoryVault) IDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0, len(v.creds))
	for id := range v.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// fileFormat is the on-disk layout of a FileVault
type fileFormat struct {
	Credentials []*Credential `yaml:"credentials"`
}

// FileVault is a MemoryVault persisted to a YAML file after every write.
//
// String values may reference the environment as ${VAR} or ${VAR:-default}.
// The file keeps those references: a value is written back in its source form
// unless it changed since the file was loaded.
type FileVault struct {
	*MemoryVault
	path string
	mu   sync.Mutex

	// source holds entries as written in the file, loaded their expanded form
	source map[string]*Credential
	loaded map[string]*Credential
}

// OpenFileVault loads the vault stored at path. A missing file yields an
// empty vault that is created on first write.
func OpenFileVault(path string) (*FileVault, error) {
	fv := &FileVault{
		MemoryVault: NewMemoryVault(),
		path:        path,
		source:      make(map[string]*Credential),
		loaded:      make(map[string]*Credential),
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: vault path is operator supplied
	if err != nil {
		if os.IsNotExist(err) {
			return fv, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read vault file").WithDetail("path", path)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse vault file").WithDetail("path", path)
	}
	for _, c := range ff.Credentials {
		if c == nil || c.ID == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "vault entry without id").WithDetail("path", path)
		}
		expanded := c.Clone()
		expanded.mapStrings(envsubst.Expand)
		fv.source[c.ID] = c
		fv.loaded[c.ID] = expanded
		fv.creds[c.ID] = expanded.Clone()
	}
	return fv, nil
}

// Put implements Vault and persists the file
func (fv *FileVault) Put(ctx context.Context, cred *Credential) error {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	if err := fv.MemoryVault.Put(ctx, cred); err != nil {
		return err
	}
	return fv.persist()
}

// Update implements Vault and persists the file
func (fv *FileVault) Update(ctx context.Context, id string, fn func(*Credential) error) error {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	if err := fv.MemoryVault.Update(ctx, id, fn); err != nil {
		return err
	}
	return fv.persist()
}

// sourceForm restores the file's ${VAR} references for every value of c
// still equal to what the reference expanded to at load time
func (fv *FileVault) sourceForm(c *Credential) *Credential {
	src, ok := fv.source[c.ID]
	if !ok {
		return c
	}
	loaded := fv.loaded[c.ID]

	out := c.Clone()
	outFields, srcFields, loadedFields := out.stringFields(), src.stringFields(), loaded.stringFields()
	for i := range outFields {
		if *outFields[i] == *loadedFields[i] {
			*outFields[i] = *srcFields[i]
		}
	}
	if len(out.Scopes) == len(src.Scopes) && len(out.Scopes) == len(loaded.Scopes) {
		for i := range out.Scopes {
			if out.Scopes[i] == loaded.Scopes[i] {
				out.Scopes[i] = src.Scopes[i]
			}
		}
	}
	for k, v := range out.Extra {
		if lv, ok := loaded.Extra[k]; ok && lv == v {
			out.Extra[k] = src.Extra[k]
		}
	}
	return out
}

// persist writes the vault atomically via a temp file and rename
func (fv *FileVault) persist() error {
	ff := fileFormat{}
	for _, id := range fv.IDs() {
		c, _ := fv.MemoryVault.Get(context.Background(), id)
		ff.Credentials = append(ff.Credentials, fv.sourceForm(c))
	}

	data, err := yaml.Marshal(&ff)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode vault")
	}

	dir := filepath.Dir(fv.path)
	tmp, err := os.CreateTemp(dir, ".vault-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create vault temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write vault")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to close vault temp file")
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to chmod vault")
	}
	if err := os.Rename(tmp.Name(), fv.path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to replace vault file")
	}
	return nil
}
