package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-records/internal/handler"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
	"github.com/jwalitptl/clinic-records/pkg/security"
)

type CreateUserRequest struct {
	Username    string         `json:"username" binding:"required,min=3,max=50"`
	Email       string         `json:"email" binding:"required,email"`
	Password    string         `json:"password" binding:"required"`
	FirstName   string         `json:"first_name" binding:"required,max=100"`
	LastName    string         `json:"last_name" binding:"required,max=100"`
	Role        model.UserRole `json:"role" binding:"omitempty,oneof=Admin Doctor Nurse Receptionist User"`
	PhoneNumber string         `json:"phone_number" binding:"max=20"`
	DoctorID    *int64         `json:"doctor_id" binding:"omitempty,gt=0"`
}

type Handler struct {
	units  handler.UnitFactory
	hasher security.PasswordHasher
}

func NewHandler(units handler.UnitFactory, hasher security.PasswordHasher) *Handler {
	return &Handler{units: units, hasher: hasher}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUser)
		users.GET("/username/:username", h.GetUserByUsername)
		users.DELETE("/:id", h.DeleteUser)
	}
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		user := &model.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
			IsActive:     true,
			PhoneNumber:  req.PhoneNumber,
			DoctorID:     req.DoctorID,
		}
		if err := u.Users().Add(user); err != nil {
			return err
		}
		if _, err := u.SaveChanges(c.Request.Context()); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusCreated, user)
		return nil
	})
}

func (h *Handler) ListUsers(c *gin.Context) {
	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		users, err := u.Users().GetAll(c.Request.Context())
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, users)
		return nil
	})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		user, err := u.Users().GetByID(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, user)
		return nil
	})
}

func (h *Handler) GetUserByUsername(c *gin.Context) {
	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		user, err := u.Users().GetByUsername(c.Request.Context(), c.Param("username"))
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, user)
		return nil
	})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if err := u.Users().DeleteByID(ctx, id); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}
