package http

// registerV1Routes sets up the v1 API.
// Groups: /api/v1/report, /api/v1/periods, /api/v1/settings, /api/v1/archive
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware()) // Add X-API-Version: v1 header

	// Report endpoints - screen state, manual refresh, export
	rep := v1.Group("/report")
	{
		rep.GET("", s.handleV1Report)
		rep.POST("/refresh", s.handleV1Refresh)
		rep.POST("/export", s.handleV1Export)
	}

	// Period selection
	periods := v1.Group("/periods")
	{
		periods.GET("/months", s.handleV1Months)
		periods.GET("/:year/:month/weeks", s.handleV1Weeks)
	}

	// Settings collaborator
	st := v1.Group("/settings")
	{
		st.GET("", s.handleV1GetSettings)
		st.PUT("", s.handleV1UpdateSettings)
		st.GET("/health", s.handleV1SettingsHealth)
	}

	v1.GET("/status", s.handleV1Status)
	v1.POST("/cache/reset", s.handleV1CacheReset)
	v1.GET("/archive", s.handleV1Archive)
}
