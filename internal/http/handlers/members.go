package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/http/middlewares"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/gin-gonic/gin"
)

type MemberService interface {
	InviteMember(ctx context.Context, actor auth.Identity, in identity.InviteInput) (user.Profile, error)
	ListMembers(ctx context.Context, actor auth.Identity, in identity.ListInput) (identity.MemberPage, error)
	DeleteMember(ctx context.Context, actor auth.Identity, id string) error
	UpdateMemberRole(ctx context.Context, actor auth.Identity, id, role string) (user.Profile, error)
}

type MembersHandler struct {
	svc MemberService
}

func NewMembersHandler(svc MemberService) *MembersHandler {
	return &MembersHandler{svc: svc}
}

type InviteMemberRequest struct {
	Username string `json:"username" binding:"required,max=64,excludes=@"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role" binding:"omitempty,oneof=admin manager project_manager business_development user"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin manager project_manager business_development user"`
}

func (h *MembersHandler) Invite(ctx *gin.Context) {
	actor, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req InviteMemberRequest

	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.InviteMember(ctx.Request.Context(), actor, identity.InviteInput{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusCreated, "Invitation sent", p)
}

func (h *MembersHandler) List(ctx *gin.Context) {
	actor, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondBadRequest(ctx, "limit must be a positive integer", gin.H{"field": "limit"})
			return
		}
		limit = n
	}

	page, err := h.svc.ListMembers(ctx.Request.Context(), actor, identity.ListInput{
		Limit:  limit,
		Cursor: ctx.Query("cursor"),
	})
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "OK", page)
}

func (h *MembersHandler) UpdateRole(ctx *gin.Context) {
	actor, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req UpdateRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.UpdateMemberRole(ctx.Request.Context(), actor, ctx.Param("id"), req.Role)
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Role updated", p)
}

func (h *MembersHandler) Delete(ctx *gin.Context) {
	actor, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	if err := h.svc.DeleteMember(ctx.Request.Context(), actor, ctx.Param("id")); err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Member removed", nil)
}
