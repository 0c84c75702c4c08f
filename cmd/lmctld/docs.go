package main

// General API documentation for swaggo. Regenerate with `swag init`.
//
// @title           lmctld API
// @version         1.0
// @description     HTTP control surface for a local llama.cpp inference service.
//
// @contact.name   lmctld maintainers
// @contact.url    https://github.com/your-org/lmctld
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
