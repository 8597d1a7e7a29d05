package handlers

import (
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"arena/internal/auth"
	"arena/internal/core/apperror"
	"arena/internal/storage/postgres"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// AuthHandler issues bearer tokens for the write surface.
type AuthHandler struct {
	*BaseHandler
	txm    *postgres.TxManager
	tokens *auth.TokenService
}

// NewAuthHandler creates the handler.
func NewAuthHandler(txm *postgres.TxManager, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(),
		txm:         txm,
		tokens:      tokens,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userCredentials struct {
	ID          int64  `db:"id"`
	Username    string `db:"username"`
	Password    string `db:"password"`
	AccessLevel int64  `db:"access_level"`
}

// Login verifies a username and password and returns a signed token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, apperror.NewMalformedInput("username and password required"))
		return
	}

	query, args, err := psql.
		Select("id", "username", "password", "access_level").
		From("users").
		Where(sq.Eq{"username": req.Username}).
		ToSql()
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	var rows []userCredentials
	if err := pgxscan.Select(c.Request.Context(), h.txm.GetQuerier(c.Request.Context()), &rows, query, args...); err != nil {
		h.Error(c, apperror.NewDatabase(err))
		return
	}
	if len(rows) == 0 {
		h.Error(c, apperror.NewUnauthorized("invalid credentials"))
		return
	}
	user := rows[0]

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.Error(c, apperror.NewUnauthorized("invalid credentials"))
		return
	}

	token, err := h.tokens.IssueToken(strconv.FormatInt(user.ID, 10), user.Username, int(user.AccessLevel))
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, gin.H{"token": token})
}
