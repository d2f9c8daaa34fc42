package router

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/handler"
	"storefront/internal/metrics"

	apperrors "storefront/internal/errors"
)

// Deps are the components the routes are built from.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Cache   *cache.Client
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Guard   *auth.Guard

	AuthHandler    *handler.AuthHandler
	ProductHandler *handler.ProductHandler
	LeadHandler    *handler.LeadHandler
}

// Register wires routes and middleware.
func Register(e *echo.Echo, d Deps) {
	e.HideBanner = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = errorHandler(d.Logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(requestLogger(d.Logger))
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: d.Config.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", healthz(d.DB, d.Cache, d.Logger))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")
	authed := d.Guard.Middleware()

	// Public routes
	api.POST("/auth/register", d.AuthHandler.Register)
	api.POST("/auth/login", d.AuthHandler.Login)
	api.GET("/products", d.ProductHandler.List)
	api.GET("/products/:id", d.ProductHandler.Get)
	api.POST("/leads", d.LeadHandler.Submit, leadLimiter(d.Config.LeadsRateLimit))

	// Any signed-in user
	api.POST("/auth/logout", d.Guard.RequireUser(d.AuthHandler.Logout), authed)
	api.GET("/auth/me", d.Guard.RequireUser(d.AuthHandler.Me), authed)

	// Admin only
	api.POST("/products", d.Guard.RequireAdmin(d.ProductHandler.Create), authed)
	api.PUT("/products/:id", d.Guard.RequireAdmin(d.ProductHandler.Update), authed)
	api.DELETE("/products/:id", d.Guard.RequireAdmin(d.ProductHandler.Delete), authed)
	api.GET("/admin/leads", d.Guard.RequireAdmin(d.LeadHandler.List), authed)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator reports fields by their JSON names.
func NewValidator() *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func healthz(gdb *gorm.DB, cacheClient *cache.Client, log zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := echo.Map{"status": "ok", "database": "ok"}
		code := http.StatusOK
		if err := db.Ping(ctx, gdb); err != nil {
			log.Error().Err(err).Msg("health check: database unreachable")
			status["status"] = "degraded"
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
		if cacheClient.Enabled() {
			status["redis"] = "ok"
			if err := cacheClient.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("health check: redis unreachable")
				status["redis"] = "unavailable"
			}
		}
		return c.JSON(code, status)
	}
}

// leadLimiter throttles the public form per client IP. A non-positive limit disables it.
func leadLimiter(perMinute float64) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := int(perMinute)
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perMinute / 60),
		Burst:     burst,
		ExpiresIn: 5 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error: "too many submissions, try again later",
				Code:  "RATE_LIMITED",
			})
		},
	})
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// errorHandler renders every error as an ErrorResponse. Causes of 5xx responses
// are logged and never sent to the client.
func errorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = &echo.HTTPError{Code: http.StatusInternalServerError, Internal: err}
		}

		var body apperrors.ErrorResponse
		switch m := he.Message.(type) {
		case apperrors.ErrorResponse:
			body = m
		case string:
			body = apperrors.ErrorResponse{Error: m, Code: apperrors.CodeForStatus(he.Code)}
		default:
			body = apperrors.ErrorResponse{Error: strings.ToLower(http.StatusText(he.Code)), Code: apperrors.CodeForStatus(he.Code)}
		}
		if he.Code >= http.StatusInternalServerError {
			cause := he.Internal
			if cause == nil {
				cause = err
			}
			log.Error().Err(cause).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Path()).
				Msg("request failed")
			body = apperrors.ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}
