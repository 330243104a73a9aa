package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
)

const leadOrigin = "whatsapp"

// LeadRequest carries everything needed to turn a message into a lead.
type LeadRequest struct {
	Message        *models.IncomingMessage
	Text           string
	Classification *models.ClassificationResult
	Context        *models.CustomerContext
}

// LeadOutcome reports a materialization. Failures are carried in Err, never
// raised.
type LeadOutcome struct {
	Success       bool
	LeadID        int64
	SellerID      int64
	Existing      bool
	ProductsAdded int
	Unresolved    []string
	Err           error
}

type LeadMaterializer struct {
	store         LeadStore
	defaultSeller int64
	metrics       *metrics.Pipeline
	tracer        trace.Tracer
	logger        logrus.FieldLogger
}

func NewLeadMaterializer(store LeadStore, defaultSeller int64, m *metrics.Pipeline, logger logrus.FieldLogger) *LeadMaterializer {
	return &LeadMaterializer{
		store:         store,
		defaultSeller: defaultSeller,
		metrics:       m,
		tracer:        otel.Tracer("leadflow/service"),
		logger:        logger,
	}
}

// CreateLead materializes a lead with one item per product mentioned. A
// delivery that already produced a lead returns that lead instead.
func (m *LeadMaterializer) CreateLead(ctx context.Context, req LeadRequest) LeadOutcome {
	ctx, span := m.tracer.Start(ctx, "lead.materialize",
		trace.WithAttributes(attribute.String("message.id", req.Message.MessageID)))
	defer span.End()

	outcome := m.create(ctx, req)
	switch {
	case outcome.Err != nil:
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "lead materialization failed")
		m.metrics.ObserveLead("failed")
	case outcome.Existing:
		m.metrics.ObserveLead("existing")
	default:
		m.metrics.ObserveLead("created")
	}
	span.SetAttributes(attribute.Int64("lead.id", outcome.LeadID))
	return outcome
}

func (m *LeadMaterializer) create(ctx context.Context, req LeadRequest) LeadOutcome {
	msg := req.Message
	if msg.MessageID != "" {
		leadID, found, err := m.store.FindLeadForMessage(ctx, msg.MessageID, msg.SenderPhone)
		if err != nil {
			return LeadOutcome{Err: apperrors.NewMaterializationError("idempotency lookup", err)}
		}
		if found {
			m.logger.WithFields(logrus.Fields{
				LogFieldLeadID:    leadID,
				LogFieldMessageID: msg.MessageID,
			}).Info("Lead already exists for message")
			return LeadOutcome{Success: true, LeadID: leadID, Existing: true}
		}
	}

	lead := &models.Lead{
		SellerID: m.defaultSeller,
		Origin:   leadOrigin,
		Note:     leadNote(req),
		Phone:    msg.SenderPhone,
		Items:    []models.LeadItem{},
	}
	if cc := req.Context; cc != nil {
		if cc.SellerID != 0 {
			lead.SellerID = cc.SellerID
		}
		if cc.Customer != nil {
			lead.CustomerID = cc.Customer.ID
		}
	}

	outcome := LeadOutcome{Unresolved: []string{}}
	for _, entity := range req.Classification.Entities.Products {
		qty, desc := splitQuantity(entity)
		item := models.LeadItem{Description: desc, Quantity: qty}

		product, err := m.store.FindProduct(ctx, productTerms(desc))
		if err != nil {
			m.logger.WithError(err).WithField("product", desc).Warn("Product lookup failed, keeping item unresolved")
		}
		if product != nil {
			item.ProductID = product.ID
			outcome.ProductsAdded++
		} else {
			item.Unresolved = true
			outcome.Unresolved = append(outcome.Unresolved, desc)
		}
		lead.Items = append(lead.Items, item)
	}

	metadata, err := json.Marshal(models.LeadOrigin{
		SessionID:  msg.SessionID,
		MessageID:  msg.MessageID,
		Intent:     req.Classification.Intent,
		Confidence: req.Classification.Confidence,
		Source:     string(req.Classification.Source),
		Entities:   req.Classification.Entities,
	})
	if err != nil {
		return LeadOutcome{Err: apperrors.NewMaterializationError("metadata", err)}
	}
	lead.Metadata = metadata

	if err := m.store.CreateLead(ctx, lead); err != nil {
		return LeadOutcome{Err: apperrors.NewMaterializationError("insert", err)}
	}

	outcome.Success = true
	outcome.LeadID = lead.ID
	outcome.SellerID = lead.SellerID
	m.logger.WithFields(logrus.Fields{
		LogFieldLeadID:   lead.ID,
		LogFieldSellerID: lead.SellerID,
		LogFieldIntent:   req.Classification.Intent,
		LogFieldCount:    len(lead.Items),
		"unresolved":     len(outcome.Unresolved),
	}).Info("Lead created from WhatsApp message")
	return outcome
}

func leadNote(req LeadRequest) string {
	if s := strings.TrimSpace(req.Classification.Summary); s != "" {
		return s
	}
	return req.Text
}

// splitQuantity separates a leading count from a product mention such as
// "5 rolamentos 6204".
func splitQuantity(entity string) (int, string) {
	entity = strings.TrimSpace(entity)
	head, rest, found := strings.Cut(entity, " ")
	if found {
		if n, err := strconv.Atoi(head); err == nil && n > 0 {
			return n, strings.TrimSpace(rest)
		}
	}
	return 1, entity
}

// productTerms lists lookup terms from most to least specific: the whole
// description, codes, then words and their singular forms.
func productTerms(desc string) []string {
	terms := []string{desc}
	var words []string
	for _, field := range strings.Fields(desc) {
		if strings.IndexFunc(field, unicode.IsDigit) >= 0 {
			terms = appendTerm(terms, field)
			continue
		}
		if len([]rune(field)) >= 3 {
			words = append(words, field)
		}
	}
	for _, w := range words {
		terms = appendTerm(terms, w)
		if singular := strings.TrimSuffix(w, "s"); singular != w && len([]rune(singular)) >= 3 {
			terms = appendTerm(terms, singular)
		}
	}
	return terms
}

func appendTerm(terms []string, term string) []string {
	for _, t := range terms {
		if strings.EqualFold(t, term) {
			return terms
		}
	}
	return append(terms, term)
}
