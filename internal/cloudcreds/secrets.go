package cloudcreds

import (
	"fmt"
	"strings"

	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
)

// MaskedValue replaces secret values in list responses.
const MaskedValue = "********"

// Seal validates values and splits them into clear fields and individually
// encrypted secrets. Unset optional fields with a default get the default.
func Seal(c *crypto.Cipher, p Provider, values map[string]string) (models.StringMap, models.StringMap, error) {
	if err := p.Validate(values, false); err != nil {
		return nil, nil, err
	}

	fields := models.StringMap{}
	secrets := models.StringMap{}
	for _, f := range p.Fields {
		v, ok := values[f.Name]
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			if f.Default != "" && !f.Secret {
				fields[f.Name] = f.Default
			}
			continue
		}
		if f.Secret {
			enc, err := c.Encrypt(v)
			if err != nil {
				return nil, nil, fmt.Errorf("encrypt %s: %w", f.Name, err)
			}
			secrets[f.Name] = enc
		} else {
			fields[f.Name] = v
		}
	}
	return fields, secrets, nil
}

// Merge applies a partial update to cred. Fields present in values replace
// the stored value; an optional field sent as "" is cleared; omitted fields,
// secret or not, keep what is stored.
func Merge(c *crypto.Cipher, p Provider, cred *models.CloudCredential, values map[string]string) error {
	if err := p.Validate(values, true); err != nil {
		return err
	}
	if cred.Fields == nil {
		cred.Fields = models.StringMap{}
	}
	if cred.Secrets == nil {
		cred.Secrets = models.StringMap{}
	}

	for name, v := range values {
		f, _ := p.Field(name)
		v = strings.TrimSpace(v)
		target := cred.Fields
		if f.Secret {
			target = cred.Secrets
		}
		if v == "" {
			delete(target, name)
			continue
		}
		if f.Secret {
			enc, err := c.Encrypt(v)
			if err != nil {
				return fmt.Errorf("encrypt %s: %w", name, err)
			}
			v = enc
		}
		target[name] = v
	}
	return nil
}

// Open returns every stored value with secrets decrypted. A secret that
// cannot be decrypted is returned as stored.
func Open(c *crypto.Cipher, cred *models.CloudCredential) map[string]string {
	out := make(map[string]string, len(cred.Fields)+len(cred.Secrets))
	for k, v := range cred.Fields {
		out[k] = v
	}
	for k, v := range cred.Secrets {
		out[k] = c.DecryptOrPassthrough(v)
	}
	return out
}

// Masked returns every stored value with secrets replaced by MaskedValue.
func Masked(cred *models.CloudCredential) map[string]string {
	out := make(map[string]string, len(cred.Fields)+len(cred.Secrets))
	for k, v := range cred.Fields {
		out[k] = v
	}
	for k := range cred.Secrets {
		out[k] = MaskedValue
	}
	return out
}
