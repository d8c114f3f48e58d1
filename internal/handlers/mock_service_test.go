package handlers

import (
	"context"
	"fmt"
	"net/http"

	"building_monitor/internal/models"
	"building_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseSubject  string
	parseErr      error

	lastGenUsername string
	lastGenPassword string
	lastParseToken  string
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.parseSubject, m.parseErr
}

type mockMonitoring struct {
	groups []service.GroupStatus
	woken  []string
}

func (m *mockMonitoring) Groups() []service.GroupStatus { return m.groups }

func (m *mockMonitoring) Group(name string) (service.GroupStatus, error) {
	for _, g := range m.groups {
		if g.Group == name {
			return g, nil
		}
	}
	return service.GroupStatus{}, fmt.Errorf("%w: %q", service.ErrGroupNotFound, name)
}

func (m *mockMonitoring) Wake(name string) error {
	if _, err := m.Group(name); err != nil {
		return err
	}
	m.woken = append(m.woken, name)
	return nil
}

type mockEventLog struct {
	resp       []models.MonitorEvent
	err        error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.MonitorEvent, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, nil)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func withHeader(req *http.Request, hdr http.Header) *http.Request {
	for k, vv := range hdr {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
