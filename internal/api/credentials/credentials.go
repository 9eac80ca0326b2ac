// Package credentials serves /api/v1/credentials, the caller's cloud provider
// credential sets.
package credentials

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/cloudcreds"
	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

const maxNameLength = 255

// Verifier checks a credential against its provider. *cloudcreds.Verifier
// satisfies it.
type Verifier interface {
	Verify(ctx context.Context, provider string, values map[string]string) error
}

// Handlers serves the credential endpoints.
type Handlers struct {
	credRepo *repositories.CredentialRepository
	cipher   *crypto.Cipher
	verifier Verifier
}

// NewHandlers creates the credential handlers.
func NewHandlers(credRepo *repositories.CredentialRepository, cipher *crypto.Cipher, verifier Verifier) *Handlers {
	return &Handlers{credRepo: credRepo, cipher: cipher, verifier: verifier}
}

// credentialResponse carries either masked or decrypted values, never the
// stored ciphertext.
type credentialResponse struct {
	*models.CloudCredential
	Values map[string]string `json:"values"`
}

// ListProvidersHandler returns the field schema of every supported provider.
func (h *Handlers) ListProvidersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": cloudcreds.Providers()})
	}
}

// ListCredentialsHandler returns the caller's credentials with secret values
// masked. ?provider= filters by provider.
func (h *Handlers) ListCredentialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		provider := strings.ToLower(strings.TrimSpace(c.Query("provider")))
		creds, err := h.credRepo.ListCredentials(c.Request.Context(), userID, provider)
		if err != nil {
			httperr.Internal(c, "Failed to list credentials", err)
			return
		}
		out := make([]credentialResponse, 0, len(creds))
		for _, cred := range creds {
			out = append(out, credentialResponse{CloudCredential: cred, Values: cloudcreds.Masked(cred)})
		}
		c.JSON(http.StatusOK, gin.H{"credentials": out})
	}
}

func (h *Handlers) load(c *gin.Context, userID string) (*models.CloudCredential, bool) {
	cred, err := h.credRepo.GetCredential(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to load credential", err)
		return nil, false
	}
	if cred == nil {
		httperr.NotFound(c, "Credential")
		return nil, false
	}
	return cred, true
}

// GetCredentialHandler returns one credential with its secrets decrypted.
func (h *Handlers) GetCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		cred, ok := h.load(c, userID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, credentialResponse{CloudCredential: cred, Values: cloudcreds.Open(h.cipher, cred)})
	}
}

// CreateRequest is the body of POST /api/v1/credentials.
type CreateRequest struct {
	Name     string            `json:"name" binding:"required"`
	Provider string            `json:"provider" binding:"required"`
	Values   map[string]string `json:"values" binding:"required"`
}

// @Summary      Create credential
// @Description  Stores a provider credential set. Secret fields are encrypted individually; the schema for each provider is at /api/v1/credentials/providers.
// @Tags         Credentials
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRequest  true  "Credential"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Unknown provider or invalid fields"
// @Failure      409  {object}  map[string]interface{}  "Name already used"
// @Router       /api/v1/credentials [post]
func (h *Handlers) CreateCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		name, ok := validName(c, req.Name)
		if !ok {
			return
		}
		p, err := cloudcreds.Lookup(req.Provider)
		if err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}
		fields, secrets, err := cloudcreds.Seal(h.cipher, p, req.Values)
		if err != nil {
			h.sealFailed(c, err)
			return
		}

		cred := &models.CloudCredential{
			UserID:   userID,
			Name:     name,
			Provider: p.ID,
			Fields:   fields,
			Secrets:  secrets,
		}
		if err := h.credRepo.CreateCredential(c.Request.Context(), cred); err != nil {
			httperr.Repo(c, err, "Credential", "Failed to create credential")
			return
		}
		c.JSON(http.StatusCreated, credentialResponse{CloudCredential: cred, Values: cloudcreds.Masked(cred)})
	}
}

// UpdateRequest is the body of PUT /api/v1/credentials/:id. Values are merged
// into what is stored: omitted fields keep their value and an optional field
// sent as "" is cleared.
type UpdateRequest struct {
	Name   *string           `json:"name"`
	Values map[string]string `json:"values"`
}

// UpdateCredentialHandler renames a credential and/or merges new values.
// Any change resets the verification status.
func (h *Handlers) UpdateCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		cred, ok := h.load(c, userID)
		if !ok {
			return
		}
		if req.Name != nil {
			name, ok := validName(c, *req.Name)
			if !ok {
				return
			}
			cred.Name = name
		}
		if len(req.Values) > 0 {
			p, err := cloudcreds.Lookup(cred.Provider)
			if err != nil {
				httperr.Internal(c, "Credential has an unknown provider", err)
				return
			}
			if err := cloudcreds.Merge(h.cipher, p, cred, req.Values); err != nil {
				h.sealFailed(c, err)
				return
			}
		}
		if err := h.credRepo.UpdateCredential(c.Request.Context(), cred); err != nil {
			httperr.Repo(c, err, "Credential", "Failed to update credential")
			return
		}
		c.JSON(http.StatusOK, credentialResponse{CloudCredential: cred, Values: cloudcreds.Masked(cred)})
	}
}

// DeleteCredentialHandler removes a credential.
func (h *Handlers) DeleteCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		if err := h.credRepo.DeleteCredential(c.Request.Context(), userID, c.Param("id")); err != nil {
			httperr.Repo(c, err, "Credential", "Failed to delete credential")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Credential deleted"})
	}
}

// @Summary      Verify credential
// @Description  Calls the provider API with the stored values and records whether they were accepted.
// @Tags         Credentials
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Credential ID"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/credentials/{id}/verify [post]
func (h *Handlers) VerifyCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		cred, ok := h.load(c, userID)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		status := models.VerificationValid
		var reason *string
		if err := h.verifier.Verify(ctx, cred.Provider, cloudcreds.Open(h.cipher, cred)); err != nil {
			status = models.VerificationInvalid
			msg := err.Error()
			reason = &msg
		}
		now := time.Now()
		if err := h.credRepo.UpdateVerification(ctx, userID, cred.ID, status, reason, now); err != nil {
			httperr.Repo(c, err, "Credential", "Failed to record verification")
			return
		}
		cred.VerificationStatus = status
		cred.VerificationError = reason
		cred.LastVerifiedAt = &now
		c.JSON(http.StatusOK, credentialResponse{CloudCredential: cred, Values: cloudcreds.Masked(cred)})
	}
}

func validName(c *gin.Context, raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		httperr.BadRequest(c, "name is required")
		return "", false
	}
	if len(name) > maxNameLength {
		httperr.BadRequest(c, "name is too long")
		return "", false
	}
	return name, true
}

func (h *Handlers) sealFailed(c *gin.Context, err error) {
	var fe *cloudcreds.FieldError
	if errors.As(err, &fe) {
		httperr.BadRequest(c, fe.Error())
		return
	}
	httperr.Internal(c, "Failed to encrypt credential", err)
}
