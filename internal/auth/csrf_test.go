package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCSRFSecret = []byte("test-secret-key-32-bytes-long!!!")

func csrfRouter(reached *bool) *gin.Engine {
	router := gin.New()
	router.Use(CSRFMiddleware(testCSRFSecret, false))
	router.GET("/token", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"csrf_token": GetCSRFToken(c)})
	})
	router.POST("/mutate", func(c *gin.Context) {
		*reached = true
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestCSRFMiddleware_AllowsGETAndSetsToken(t *testing.T) {
	var reached bool
	router := csrfRouter(&reached)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/token", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for GET request, got %d", rr.Code)
	}
	if len(rr.Result().Cookies()) == 0 {
		t.Error("Expected CSRF cookie to be issued")
	}
}

func TestCSRFMiddleware_BlocksPOSTWithoutToken(t *testing.T) {
	var reached bool
	router := csrfRouter(&reached)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mutate", nil))

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for POST without CSRF token, got %d", rr.Code)
	}
	if reached {
		t.Error("handler ran despite CSRF rejection")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON error, got Content-Type %q", ct)
	}
}

func TestCSRFMiddleware_AcceptsTokenHeader(t *testing.T) {
	var reached bool
	router := csrfRouter(&reached)

	var token string
	tokenRouter := gin.New()
	tokenRouter.Use(CSRFMiddleware(testCSRFSecret, false))
	tokenRouter.GET("/token", func(c *gin.Context) {
		token = GetCSRFToken(c)
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	tokenRouter.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/token", nil))
	if token == "" {
		t.Fatal("Expected CSRF token to be set in context")
	}

	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	for _, cookie := range rr.Result().Cookies() {
		req.AddCookie(cookie)
	}
	req.Header.Set(CSRFTokenHeader, token)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 with valid token, got %d", rr.Code)
	}
	if !reached {
		t.Error("handler did not run")
	}
}

func TestGetCSRFToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if token := GetCSRFToken(c); token != "" {
		t.Errorf("Expected empty token, got %s", token)
	}

	c.Set(contextKeyCSRFToken, "test-token-123")
	if token := GetCSRFToken(c); token != "test-token-123" {
		t.Errorf("Expected 'test-token-123', got '%s'", token)
	}
}
