package controllers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xclusive3d/web/db"
)

func TestRegisterCreatesUserAndWallet(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)

	w := doJSON(a.Register, http.MethodPost, "/api/users/register", map[string]interface{}{
		"email":     "New.User@Example.com",
		"password":  "correct horse",
		"firstName": "New",
		"lastName":  "User",
		"country":   "Netherlands",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user db.User
	require.NoError(t, a.DB.Where("email = ?", "new.user@example.com").First(&user).Error)
	assert.True(t, user.HasFreeConversion)
	assert.NotEqual(t, "correct horse", user.Password)

	var wallet db.Wallet
	require.NoError(t, a.DB.Where("user_id = ?", user.ID).First(&wallet).Error)
	assert.Equal(t, int64(0), wallet.Balance)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)
	seedUserWithWallet(t, a, "taken@example.com", "Netherlands", 0)

	w := doJSON(a.Register, http.MethodPost, "/api/users/register", map[string]interface{}{
		"email":     "taken@example.com",
		"password":  "correct horse",
		"firstName": "Dup",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginRoundTrip(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)

	w := doJSON(a.Register, http.MethodPost, "/api/users/register", map[string]interface{}{
		"email":     "login@example.com",
		"password":  "correct horse",
		"firstName": "Log",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(a.Login, http.MethodPost, "/api/users/login", map[string]interface{}{
		"email":    "login@example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["token"])
}

func TestLoginWrongPassword(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)

	w := doJSON(a.Register, http.MethodPost, "/api/users/register", map[string]interface{}{
		"email":     "wrong@example.com",
		"password":  "correct horse",
		"firstName": "Wr",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(a.Login, http.MethodPost, "/api/users/login", map[string]interface{}{
		"email":    "wrong@example.com",
		"password": "battery staple",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyEmailTokenPurposeIsChecked(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)
	user, _ := seedUserWithWallet(t, a, "verify@example.com", "Netherlands", 0)

	// a session token must not pass email verification
	session, err := signToken(user.ID, "session", time.Hour)
	require.NoError(t, err)
	w := doJSON(a.VerifyEmail, http.MethodGet, "/api/users/verify-email?token="+session, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	verify, err := signToken(user.ID, "verify", time.Hour)
	require.NoError(t, err)
	w = doJSON(a.VerifyEmail, http.MethodGet, "/api/users/verify-email?token="+verify, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got db.User
	require.NoError(t, a.DB.First(&got, user.ID).Error)
	assert.True(t, got.Verified)
}

func TestUpdateProfilePatchesOnlySentFields(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)
	user, _ := seedUserWithWallet(t, a, "patch@example.com", "Netherlands", 0)
	token, err := signToken(user.ID, "session", time.Hour)
	require.NoError(t, err)

	w := doJSONAuth(a.UpdateProfile, http.MethodPut, "/api/users/update", token, map[string]interface{}{
		"country": "Germany",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got db.User
	require.NoError(t, a.DB.First(&got, user.ID).Error)
	assert.Equal(t, "Germany", got.Country)
	assert.Equal(t, "Test", got.FirstName)
}

func TestDeleteUserOnlySelf(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)
	self, _ := seedUserWithWallet(t, a, "self@example.com", "Netherlands", 0)
	other, _ := seedUserWithWallet(t, a, "other@example.com", "Netherlands", 0)
	token, err := signToken(self.ID, "session", time.Hour)
	require.NoError(t, err)

	w := doJSONAuthParams(a.DeleteUser, http.MethodDelete, "/api/users/2", token,
		gin.Params{{Key: "id", Value: strconv.FormatUint(uint64(other.ID), 10)}}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var stillThere db.User
	assert.NoError(t, a.DB.First(&stillThere, other.ID).Error)

	w = doJSONAuthParams(a.DeleteUser, http.MethodDelete, "/api/users/1", token,
		gin.Params{{Key: "id", Value: strconv.FormatUint(uint64(self.ID), 10)}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var gone db.User
	assert.Error(t, a.DB.First(&gone, self.ID).Error)
}

func TestMeRequiresToken(t *testing.T) {
	t.Setenv("JWTKEY", "test-signing-key")
	a := testAPI(t, nil, true)

	w := doJSON(a.Me, http.MethodGet, "/api/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
