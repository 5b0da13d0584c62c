package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/riskdesk/internal/cache"
	"github.com/Veraticus/riskdesk/internal/chat"
	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/service"
)

// customerID accepts ids sent as JSON strings or numbers.
type customerID string

func (c *customerID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*c = customerID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = customerID(s)
	return nil
}

type assessmentRequest struct {
	CustomerID customerID `json:"customer_id"`
}

type chatRequest struct {
	Query      string     `json:"query"`
	CustomerID customerID `json:"customer_id"`
}

type assessmentResponse struct {
	ID                string                   `json:"assessment_id"`
	CustomerID        string                   `json:"customer_id"`
	RiskCategory      model.Category           `json:"risk_category"`
	Explanation       string                   `json:"explanation"`
	Recommendation    string                   `json:"recommendation"`
	RiskFactors       []string                 `json:"risk_factors"`
	Degraded          []string                 `json:"degraded,omitempty"`
	Summary           model.TransactionSummary `json:"summary"`
	RiskScore         int                      `json:"risk_score"`
	TotalTransactions int                      `json:"total_transactions"`
	RiskyTransactions int                      `json:"risky_transactions"`
	Success           bool                     `json:"success"`
	RuleUpdated       bool                     `json:"rule_updated"`
}

func (s *Server) riskAssessmentHandler(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request"})
		return
	}
	id := strings.TrimSpace(string(req.CustomerID))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Customer ID is required"})
		return
	}
	if s.opts.Assessor == nil {
		if !s.hasData(c, id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No transaction data found for customer ID " + id})
			return
		}
		s.notConfigured(c)
		return
	}

	a, err := s.opts.Assessor.Assess(c.Request.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrDataNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No transaction data found for customer ID " + id})
		return
	case common.IsConfigError(err):
		s.notConfigured(c)
		return
	default:
		common.LogError(err, "Risk assessment failed", common.Fields{"customer_id": id})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing risk assessment"})
		return
	}

	c.JSON(http.StatusOK, assessmentResponse{
		Success:           true,
		ID:                a.ID,
		CustomerID:        a.CustomerID,
		RiskScore:         a.Combined.RiskScore,
		RiskCategory:      a.Combined.RiskCategory,
		RiskFactors:       a.Combined.RiskFactors,
		Explanation:       a.Combined.Explanation,
		Recommendation:    a.Combined.Recommendation,
		Summary:           a.Summary,
		TotalTransactions: a.TotalTransactions,
		RiskyTransactions: a.RiskyTransactions,
		RuleUpdated:       a.RuleUpdated,
		Degraded:          a.Degraded,
	})
}

type chatResponse struct {
	Response      string `json:"response"`
	Visualization string `json:"visualization,omitempty"`
	DataframeHTML string `json:"dataframe_html,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Class         string `json:"class,omitempty"`
	Fallback      string `json:"fallback,omitempty"`
}

func (s *Server) transactionChatHandler(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request"})
		return
	}
	q := chat.Query{Text: req.Query, CustomerID: strings.TrimSpace(string(req.CustomerID))}
	if strings.TrimSpace(q.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}
	if s.opts.Chat == nil {
		msg := chat.NotConfiguredMessage
		if q.CustomerID != "" && !s.hasData(c, q.CustomerID) {
			msg = fmt.Sprintf(chat.NoDataMessage, q.CustomerID)
		}
		c.JSON(http.StatusOK, chatResponse{Response: msg})
		return
	}

	res := s.opts.Chat.Handle(c.Request.Context(), q)
	body := chatResponse{
		Response: res.Response,
		Class:    string(res.Class),
		Fallback: string(res.Fallback),
	}
	if res.Output != nil {
		body.Visualization = res.Output.Visualization
		body.DataframeHTML = res.Output.DataframeHTML
		body.Summary = res.Output.Summary
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) complianceHandler(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a number"})
			return
		}
		page = n
	}
	regenerate, err := parseFlag(c.Query("regenerate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "regenerate must be true or false"})
		return
	}
	if s.opts.Pages == nil {
		s.notConfigured(c)
		return
	}

	key := cache.Key{CustomerID: strings.TrimSpace(c.Query("customer_id")), Page: page}
	result, err := s.opts.Pages.Page(c.Request.Context(), key, regenerate)
	if common.IsConfigError(err) {
		s.notConfigured(c)
		return
	}
	if err != nil {
		common.LogError(err, "Compliance page failed", common.Fields{"page": page, "customer_id": key.CustomerID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error loading transactions"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// hasData reports whether the customer has stored transactions. It answers
// true when that cannot be determined.
func (s *Server) hasData(c *gin.Context, customerID string) bool {
	if s.opts.Data == nil {
		return true
	}
	n, err := s.opts.Data.CountTransactions(c.Request.Context(), service.TransactionFilter{CustomerID: customerID})
	if err != nil {
		common.LogError(err, "Failed to count customer transactions", common.Fields{"customer_id": customerID})
		return true
	}
	return n > 0
}

func (s *Server) notConfigured(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": false, "error": chat.NotConfiguredMessage})
}

func parseFlag(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
