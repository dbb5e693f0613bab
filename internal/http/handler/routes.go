package handler

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"docintake/docs"
	"docintake/internal/export"
	"docintake/internal/http/web"
	"docintake/internal/model"
	"docintake/internal/service"
)

// uploadResponse is the body of a successful upload.
type uploadResponse struct {
	Message string                `json:"message"`
	Data    *model.DocumentRecord `json:"data"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// db may be nil when records are kept in memory.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService) {
	app.Get("/", web.Index())
	app.Get("/swagger/*", SwaggerUI())

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Post("/upload", UploadDocument(docSvc))
	api.Get("/documents", ListDocuments(docSvc))
	api.Get("/documents/export", ExportDocuments(docSvc))
}

// SwaggerUI serves the API docs with host and scheme taken from the request,
// so the "Try it out" button works behind a proxy.
func SwaggerUI() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Hostname()
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	}
}

// HealthCheck godoc
// @Summary      Readiness check
// @Description  Pings the database when one is configured.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  errorPayload
// @Router       /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy", "database": "disabled"})
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe godoc
// @Summary  Liveness probe
// @Tags     health
// @Success  200
// @Router   /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadDocument godoc
// @Summary      Upload an identity document
// @Description  Validates the file, extracts its fields with the configured vendor and stores the record.
// @Tags         documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        document  formData  file  true  "PNG, JPEG or PDF, at most 2MB"
// @Success      200  {object}  uploadResponse
// @Failure      400  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/upload [post]
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("document")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", MsgNoFile)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		rec, err := docSvc.Process(c.UserContext(), service.Upload{
			Reader:      f,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
		})
		if err != nil {
			return writeProcessError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(uploadResponse{
			Message: "Document processed successfully",
			Data:    rec,
		})
	}
}

// ListDocuments godoc
// @Summary  List stored documents
// @Tags     documents
// @Produce  json
// @Success  200  {array}   model.DocumentRecord
// @Failure  500  {object}  errorPayload
// @Router   /api/documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		records, err := docSvc.List(c.UserContext())
		if err != nil {
			return writeInternalError(c, "list_failed", err)
		}
		if records == nil {
			records = []model.DocumentRecord{}
		}
		return c.JSON(records)
	}
}

// ExportDocuments godoc
// @Summary  Export stored documents as an XLSX workbook
// @Tags     documents
// @Produce  application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success  200  {file}    file
// @Failure  500  {object}  errorPayload
// @Router   /api/documents/export [get]
func ExportDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := docSvc.Export(c.UserContext())
		if err != nil {
			return writeInternalError(c, "export_failed", err)
		}
		c.Attachment("documents.xlsx")
		c.Set(fiber.HeaderContentType, export.ContentTypeXLSX)
		return c.Send(b)
	}
}
