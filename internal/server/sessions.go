package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/providers/pdf"
	"github.com/dinehall/dinehall/internal/restaurantcontext"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type openSessionBody struct {
	TableID    *snowflake.ID `json:"table_id"`
	WaiterID   *snowflake.ID `json:"waiter_id"`
	GuestCount int           `json:"guest_count"`
}

func (s *Server) OpenSession(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body openSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	view, err := s.sessionSvc.OpenSession(c.Request.Context(), sessiondomain.OpenSessionRequest{
		RestaurantID: restaurantID,
		TableID:      body.TableID,
		WaiterID:     body.WaiterID,
		GuestCount:   body.GuestCount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

type addItemBody struct {
	MenuItemID  snowflake.ID          `json:"menu_item_id"`
	Name        string                `json:"name"`
	Quantity    int                   `json:"quantity"`
	UnitPrice   decimal.Decimal       `json:"unit_price"`
	DiscountPct decimal.Decimal       `json:"discount_pct"`
	Station     sessiondomain.Station `json:"station"`
}

func (s *Server) AddItem(c *gin.Context) {
	sessionID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body addItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	item, err := s.sessionSvc.AddItem(c.Request.Context(), sessiondomain.AddItemRequest{
		SessionID:   sessionID,
		MenuItemID:  body.MenuItemID,
		Name:        body.Name,
		Quantity:    body.Quantity,
		UnitPrice:   body.UnitPrice,
		DiscountPct: body.DiscountPct,
		Station:     body.Station,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

type updatePrepBody struct {
	Status sessiondomain.PrepStatus `json:"status"`
}

func (s *Server) UpdateItemPrep(c *gin.Context) {
	itemID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body updatePrepBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	item, err := s.sessionSvc.UpdateItemPrep(c.Request.Context(), itemID, body.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) RemoveItem(c *gin.Context) {
	itemID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.sessionSvc.RemoveItem(c.Request.Context(), itemID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkBilled freezes the figures for cashier review and, when asked,
// returns the printable bill.
func (s *Server) MarkBilled(c *gin.Context) {
	sessionID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.sessionSvc.MarkBilled(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("format") == "pdf" && s.pdf != nil {
		view, err := s.sessionSvc.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		reader, err := s.pdf.GenerateBill(c.Request.Context(), billData(view))
		if err != nil {
			s.log.Warn("bill pdf render failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		servePDF(c, reader, "bill-"+sessionID.String()+".pdf")
		return
	}

	c.JSON(http.StatusOK, session)
}

type settleBody struct {
	Method   sessiondomain.PaymentMethod `json:"method"`
	Tendered *decimal.Decimal            `json:"tendered"`
}

func (s *Server) Settle(c *gin.Context) {
	sessionID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body settleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	receipt, err := s.settlementSvc.Settle(c.Request.Context(), settlementdomain.SettleRequest{
		SessionID: sessionID,
		Method:    body.Method,
		Tendered:  body.Tendered,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("format") == "pdf" && s.pdf != nil {
		view, viewErr := s.sessionSvc.GetSession(c.Request.Context(), sessionID)
		if viewErr == nil {
			reader, renderErr := s.pdf.GenerateReceipt(c.Request.Context(), *receipt, billData(view))
			if renderErr == nil {
				servePDF(c, reader, "receipt-"+sessionID.String()+".pdf")
				return
			}
			// Settlement already committed; a broken printer must not
			// look like a failed payment.
			s.log.Warn("receipt pdf render failed", zap.Error(renderErr))
		}
	}

	c.JSON(http.StatusOK, receipt)
}

func (s *Server) ListActiveSessions(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	views, err := s.sessionSvc.ListActiveSessions(c.Request.Context(), restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

// LiveSessions serves the tracker's warm view when one exists and
// falls back to a direct query otherwise.
func (s *Server) LiveSessions(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if s.tracker != nil {
		s.tracker.Start(restaurantID)
		if views, ok := s.tracker.Snapshot(restaurantID); ok {
			c.JSON(http.StatusOK, gin.H{"sessions": views, "cached": true})
			return
		}
	}

	views, err := s.sessionSvc.ListActiveSessions(c.Request.Context(), restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views, "cached": false})
}

func (s *Server) ListClosedSessions(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	views, err := s.sessionSvc.ListClosedSessions(c.Request.Context(), restaurantID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (s *Server) PaymentMethodTotals(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	totals, err := s.sessionSvc.PaymentMethodTotals(c.Request.Context(), restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals})
}

func billData(view *sessiondomain.SessionView) pdf.BillData {
	data := pdf.BillData{
		RestaurantName: "DineHall",
		TableLabel:     "OTC",
		SessionID:      view.Session.ID.String(),
		OpenedAt:       view.Session.OpenedAt.Format("2006-01-02 15:04:05"),
		Total:          view.Order.Total.StringFixed(2),
	}
	if view.TableNumber != nil {
		data.TableLabel = strconv.Itoa(*view.TableNumber)
	}
	for _, item := range view.Items {
		data.Lines = append(data.Lines, pdf.BillLine{
			Name:     item.Name,
			Quantity: item.Quantity,
			LineSum:  item.LineSum.StringFixed(2),
		})
	}
	return data
}

func servePDF(c *gin.Context, reader io.Reader, filename string) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
