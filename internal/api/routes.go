package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)

		v1.POST("/indicators/:name", s.handleCalculateIndicator)

		riskGroup := v1.Group("/risk")
		{
			riskGroup.POST("/var", s.handleCalculateVaR)
			riskGroup.POST("/stress", s.handleRunStress)
			riskGroup.POST("/montecarlo", s.handleMonteCarlo)
		}

		portfolioGroup := v1.Group("/portfolio")
		{
			portfolioGroup.POST("/optimize", s.handleOptimizePortfolio)
		}

		modelsGroup := v1.Group("/models")
		{
			modelsGroup.GET("", s.handleListModels)
			modelsGroup.POST("/train", s.handleTrainModel)
			modelsGroup.POST("/predict", s.handlePredict)
		}

		v1.POST("/factors/ic", s.handleFactorIC)
	}

	// Websocket signal stream sits outside the versioned group
	s.router.GET("/ws/signals", s.handleSignalStream)

	s.router.GET("/", s.handleRoot)
}
