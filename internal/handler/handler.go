// Package handler holds the helpers shared by the HTTP handlers.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/medrecord-api/internal/middleware"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/httputil"
	"github.com/jwalitptl/medrecord-api/pkg/validator"
)

// Bind decodes the JSON body into req and reports a described 400 on failure.
func Bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Describe(err).Error(), err))
		return false
	}
	return true
}

// ParamID parses a uuid path parameter. A malformed id is a 400.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest(name+" must be a uuid", err))
		return uuid.Nil, false
	}
	return id, true
}

// Actor returns the authenticated actor or writes a 401.
func Actor(c *gin.Context) (*model.Actor, bool) {
	actor := middleware.Actor(c)
	if actor == nil {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return nil, false
	}
	return actor, true
}
