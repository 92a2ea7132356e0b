package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aidin1998/brokerage/pkg/models"
)

func (s *Server) createCustomer(c *gin.Context) {
	var req createCustomerRequest
	if !s.bindJSON(c, &req) {
		return
	}
	cust, err := s.customers.Create(c.Request.Context(), req.Name, req.Surname)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cust)
}

func (s *Server) listCustomers(c *gin.Context) {
	customers, err := s.customers.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (s *Server) getCustomer(c *gin.Context) {
	id, err := parseUUID("id", c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	cust, err := s.customers.GetEnabled(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if !s.bindJSON(c, &req) {
		return
	}
	customerID, err := parseUUID("customerId", req.CustomerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	size, err := parseDecimal("size", req.Size)
	if err != nil {
		s.writeError(c, err)
		return
	}
	price, err := parseDecimal("price", req.Price)
	if err != nil {
		s.writeError(c, err)
		return
	}

	order, err := s.orders.Create(c.Request.Context(), customerID, req.AssetCode, models.OrderSide(req.Side), size, price)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, err := parseUUID("id", c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.orders.Cancel(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": models.StatusCanceled})
}

// listOrders returns a customer's orders inside a date range. The range
// defaults to the last 30 days.
func (s *Server) listOrders(c *gin.Context) {
	customerID, err := parseUUID("customerId", c.Query("customerId"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -30)
	if v := c.Query("startDate"); v != "" {
		if startDate, err = parseDate("startDate", v); err != nil {
			s.writeError(c, err)
			return
		}
	}
	if v := c.Query("endDate"); v != "" {
		if endDate, err = parseDate("endDate", v); err != nil {
			s.writeError(c, err)
			return
		}
	}

	page, size := paging(c)
	orders, err := s.orders.List(c.Request.Context(), customerID, startDate, endDate, page, size)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) listOrderTrades(c *gin.Context) {
	id, err := parseUUID("id", c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	trades, err := s.trades.ListByOrder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) listAssets(c *gin.Context) {
	customerID, err := parseUUID("customerId", c.Query("customerId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if _, err := s.customers.GetEnabled(c.Request.Context(), customerID); err != nil {
		s.writeError(c, err)
		return
	}
	assets, err := s.ledger.ListAssets(c.Request.Context(), customerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (s *Server) createTransaction(c *gin.Context) {
	var req createTransactionRequest
	if !s.bindJSON(c, &req) {
		return
	}
	customerID, err := parseUUID("customerId", req.CustomerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	amount, err := parseDecimal("amount", req.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}

	txn, err := s.transactions.Record(c.Request.Context(), customerID, models.TransactionType(req.Type), amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (s *Server) listTransactions(c *gin.Context) {
	customerID, err := parseUUID("customerId", c.Query("customerId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	txns, err := s.transactions.List(c.Request.Context(), customerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (s *Server) matchOrders(c *gin.Context) {
	assetCode := c.Param("assetCode")
	executed, err := s.engine.MatchOrders(c.Request.Context(), assetCode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetCode": assetCode, "tradesExecuted": executed})
}

func paging(c *gin.Context) (page, size int) {
	page, size = 0, 10
	if n, err := strconv.Atoi(c.Query("page")); err == nil {
		page = n
	}
	if n, err := strconv.Atoi(c.Query("size")); err == nil {
		size = n
	}
	return page, size
}
