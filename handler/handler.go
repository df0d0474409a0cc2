// Package handler exposes the HTTP surface: link creation, resolution,
// stats, moderation and deletion.
package handler

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lithammer/shortuuid/v4"
	"github.com/lnkr-app/lnkr/admission"
	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/resolver"
	"github.com/lnkr-app/lnkr/shared"
	"github.com/lnkr-app/lnkr/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler struct {
	Admission   *admission.Pipeline
	Resolver    *resolver.Resolver
	Stats       *stats.Service
	Repo        repo.Repository
	Logger      *shared.Logger
	Metrics     *shared.Metrics
	Tracer      *shared.Tracer
	DefaultHost string

	// LookupIP resolves the target hostname when a ban request asks to
	// ban the host as well. Overridable in tests.
	LookupIP func(ctx context.Context, host string) ([]string, error)

	requestPerSecond *prometheus.CounterVec
	twoXXStatusCode  *prometheus.GaugeVec
	fourXXStatusCode *prometheus.GaugeVec
	fiveXXStatusCode *prometheus.GaugeVec
}

func New(adm *admission.Pipeline, rs *resolver.Resolver, st *stats.Service, r repo.Repository, logger *shared.Logger, metrics *shared.Metrics, tracer *shared.Tracer, defaultHost string) *Handler {
	h := &Handler{
		Admission:   adm,
		Resolver:    rs,
		Stats:       st,
		Repo:        r,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
		DefaultHost: defaultHost,
	}

	h.requestPerSecond = metrics.RegisterCounter("request_per_second", "Request per second", []string{"method", "path"})
	h.twoXXStatusCode = metrics.RegisterGauge("status_code_2xx", "2xx status code", []string{"method", "path", "code"})
	h.fourXXStatusCode = metrics.RegisterGauge("status_code_4xx", "4xx status code", []string{"method", "path", "code"})
	h.fiveXXStatusCode = metrics.RegisterGauge("status_code_5xx", "5xx status code", []string{"method", "path", "code"})

	return h
}

// Register binds every route onto the service.
func (h *Handler) Register(svc *shared.HttpService) {
	svc.Use(h.RequestCounterMiddleware)
	svc.Use(h.ResponseStatusCodeMiddleware)
	svc.Use(h.APIKeyMiddleware)

	svc.Routes("/metrics", h.MetricsHandler, "GET")
	svc.Routes("/banned", h.BannedHandler, "GET")
	svc.Routes("/links", h.CreateLinkHandler, "POST")
	svc.Routes("/links", h.ListLinksHandler, "GET")
	svc.Routes("/links/:id/stats", h.StatsHandler, "GET")
	svc.Routes("/links/:id/ban", h.BanLinkHandler, "POST")
	svc.Routes("/links/:id", h.DeleteLinkHandler, "DELETE")
	svc.Routes("/:address", h.ResolveHandler, "GET")
	svc.Routes("/:address", h.ResolveHandler, "POST")
}

func (h *Handler) shortLink(address string, domainAddress string) string {
	host := h.DefaultHost
	if domainAddress != "" {
		host = domainAddress
	}
	return fmt.Sprintf("https://%s/%s", host, address)
}

func linkResponse(link model.Link, reuse bool, shortLink string) fiber.Map {
	resp := fiber.Map{
		"id":          link.Address,
		"address":     link.Address,
		"target":      link.Target,
		"banned":      link.Banned,
		"password":    link.Password != "",
		"visit_count": link.VisitCount,
		"created_at":  link.CreatedAt,
		"shortLink":   shortLink,
	}
	if reuse {
		resp["reuse"] = true
	}
	if link.ExpiresAt != nil {
		resp["expires_at"] = link.ExpiresAt
	}
	if link.Description != "" {
		resp["description"] = link.Description
	}
	return resp
}

func (h *Handler) MetricsHandler(c *fiber.Ctx) error {
	metrics, err := h.Metrics.GetPrometheusMetrics()
	if err != nil {
		return c.Status(500).SendString("Failed to collect metrics")
	}
	return c.Type("text/plain").SendString(metrics)
}

func (h *Handler) BannedHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(fiber.Map{
		"message": "This link has been banned for malware, scam or abuse.",
	})
}

func (h *Handler) CreateLinkHandler(c *fiber.Ctx) error {
	requestID := shortuuid.New()

	var createRequest admission.CreateRequest
	if err := c.BodyParser(&createRequest); err != nil {
		h.Logger.Error("CannotParseBody", zap.String("id", requestID), zap.Int("code", 400), zap.Error(err))
		return jsonError(c, 400, "Cannot parse body")
	}

	actor := actorFrom(c)
	h.Logger.Info("CreateLink", zap.String("id", requestID), zap.String("target", createRequest.Target), zap.Bool("registered", actor != nil))

	result, err := h.Admission.Admit(c.Context(), createRequest, actor, c.IP())
	if err != nil {
		if admission.IsUserError(err) {
			h.Logger.Info("CreateLinkRejected", zap.String("id", requestID), zap.Int("code", 400), zap.String("reason", err.Error()))
			return jsonError(c, 400, err.Error())
		}
		h.Logger.Error("CreateLinkFailed", zap.String("id", requestID), zap.Int("code", 500), zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}

	// Domain decoration is best effort, only the short link text uses it.
	domainAddress := ""
	if result.Link.DomainID != nil {
		if domain, err := h.Repo.FindDomainByID(c.Context(), *result.Link.DomainID); err == nil && domain != nil {
			domainAddress = domain.Address
		}
	}

	h.Logger.Info("CreateLinkDone", zap.String("id", requestID), zap.String("address", result.Link.Address), zap.Bool("reuse", result.Reuse))
	return c.Status(200).JSON(linkResponse(result.Link, result.Reuse, h.shortLink(result.Link.Address, domainAddress)))
}

func (h *Handler) ListLinksHandler(c *fiber.Ctx) error {
	actor := actorFrom(c)
	if actor == nil {
		return jsonError(c, 401, "Authentication required")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("skip", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	links, total, err := h.Repo.ListUserLinks(c.Context(), actor.ID, limit, offset)
	if err != nil {
		h.Logger.Error("ListLinksFailed", zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}

	list := make([]fiber.Map, 0, len(links))
	for _, link := range links {
		list = append(list, linkResponse(link, false, h.shortLink(link.Address, "")))
	}
	return c.Status(200).JSON(fiber.Map{"list": list, "countAll": total})
}

func (h *Handler) StatsHandler(c *fiber.Ctx) error {
	actor := actorFrom(c)
	address := c.Params("id")
	domainAddress := c.Query("domain")
	if parsed, err := url.Parse(admission.AddProtocol(domainAddress)); domainAddress != "" && err == nil && parsed.Hostname() != "" {
		domainAddress = parsed.Hostname()
	}

	snapshot, err := h.Stats.GetStats(c.Context(), address, domainAddress, actor)
	if err != nil {
		switch err {
		case stats.ErrUnauthorized:
			return jsonError(c, 401, err.Error())
		case stats.ErrNotFound:
			return jsonError(c, 404, err.Error())
		default:
			h.Logger.Error("StatsFailed", zap.String("address", address), zap.Error(err))
			return jsonError(c, 500, "Internal server error")
		}
	}

	return c.Status(200).JSON(snapshot)
}

type banRequest struct {
	Host   bool `json:"host"`
	User   bool `json:"user"`
	Domain bool `json:"domain"`
}

func (h *Handler) BanLinkHandler(c *fiber.Ctx) error {
	actor := actorFrom(c)
	if actor == nil {
		return jsonError(c, 401, "Authentication required")
	}
	if !actor.Admin {
		return jsonError(c, 403, "Moderation rights required")
	}

	address := c.Params("id")
	var banReq banRequest
	c.BodyParser(&banReq) // an empty body means a plain link ban

	link, err := h.Repo.FindLink(c.Context(), repo.LinkFilter{Address: address})
	if err != nil {
		h.Logger.Error("BanLookupFailed", zap.String("address", address), zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}
	if link == nil {
		return jsonError(c, 404, "Link does not exist")
	}
	if link.Banned {
		return c.Status(200).JSON(fiber.Map{"message": "Link has already been banned"})
	}

	targetHost := ""
	if parsed, err := url.Parse(link.Target); err == nil {
		targetHost = parsed.Hostname()
	}

	opts := repo.BanOptions{Address: address, BannedBy: actor.ID}
	if banReq.Host && targetHost != "" {
		if addrs, err := h.lookupIP(c.Context(), targetHost); err == nil && len(addrs) > 0 {
			opts.HostIP = addrs[0]
		}
	}
	if banReq.Domain && targetHost != "" {
		opts.Domain = targetHost
	}
	if banReq.User && link.UserID != nil {
		opts.UserID = link.UserID
	}

	if err := h.Repo.BanLink(c.Context(), opts); err != nil {
		h.Logger.Error("BanFailed", zap.String("address", address), zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}

	h.Logger.Info("LinkBanned", zap.String("address", address), zap.Uint("by", actor.ID))
	return c.Status(200).JSON(fiber.Map{"message": "Link has been banned successfully"})
}

func (h *Handler) lookupIP(ctx context.Context, host string) ([]string, error) {
	if h.LookupIP != nil {
		return h.LookupIP(ctx, host)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return net.DefaultResolver.LookupHost(ctx, host)
}

func (h *Handler) DeleteLinkHandler(c *fiber.Ctx) error {
	actor := actorFrom(c)
	if actor == nil {
		return jsonError(c, 401, "Authentication required")
	}

	address := c.Params("id")
	var domainID *uint
	if domainAddress := c.Query("domain"); domainAddress != "" {
		domain, err := h.Repo.FindDomain(c.Context(), domainAddress)
		if err != nil {
			return jsonError(c, 500, "Internal server error")
		}
		if domain == nil {
			return jsonError(c, 404, "Could not delete the short link")
		}
		domainID = &domain.ID
	}

	deleted, err := h.Repo.DeleteLink(c.Context(), address, domainID, actor.ID)
	if err != nil {
		h.Logger.Error("DeleteFailed", zap.String("address", address), zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}
	if !deleted {
		return jsonError(c, 404, "Could not delete the short link")
	}

	return c.Status(200).JSON(fiber.Map{"message": "Short link deleted successfully"})
}

func (h *Handler) ResolveHandler(c *fiber.Ctx) error {
	ctx, span := h.Tracer.StartSpan("ResolveHandler", c.Context(), trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var body struct {
		Password string `json:"password"`
	}
	if c.Method() == "POST" {
		c.BodyParser(&body)
	}

	outcome, err := h.Resolver.Resolve(ctx, resolver.Request{
		Address:   c.Params("address"),
		Host:      c.Hostname(),
		Password:  body.Password,
		UserAgent: c.Get("User-Agent"),
		Referrer:  c.Get("Referer"),
		IP:        c.IP(),
	})
	if err != nil {
		h.Logger.Error("ResolveFailed", zap.String("address", c.Params("address")), zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}

	switch outcome.Kind {
	case resolver.OutcomeRedirect:
		return c.Redirect(outcome.Target, 302)
	case resolver.OutcomeHomepage:
		return c.Redirect(outcome.Target, 301)
	case resolver.OutcomeBanned:
		return c.Redirect("/banned", 302)
	case resolver.OutcomeInfo:
		return c.Status(200).JSON(fiber.Map{"mode": "info", "address": outcome.Address, "target": outcome.Target})
	case resolver.OutcomeChallenge:
		return c.Status(200).JSON(fiber.Map{"mode": "password", "address": outcome.Address})
	case resolver.OutcomeUnauthorized:
		return jsonError(c, 401, "Password is not correct")
	case resolver.OutcomeTarget:
		return c.Status(200).JSON(fiber.Map{"target": outcome.Target})
	default:
		return jsonError(c, 404, "Could not find the short link")
	}
}
