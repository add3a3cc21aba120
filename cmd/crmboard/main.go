package main

import "crmboard/internal/app"

// @title           CRM Board API
// @version         1.0
// @description     Экран CRM: воронки, стадии и лиды с серверным состоянием фильтра
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	app.Run()
}
