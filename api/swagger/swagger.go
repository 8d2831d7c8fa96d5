package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Budget & Fund Management API",
        "description": "Budget line-item tracking with approval workflows and fund control",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session management"},
        {"name": "Users", "description": "User administration"},
        {"name": "Appropriations", "description": "Fund-control appropriation ledger"},
        {"name": "Budgets", "description": "Budget lifecycle and line items"},
        {"name": "Approvals", "description": "Workflow definitions and approval requests"},
        {"name": "Obligations", "description": "Commitments against active budgets"},
        {"name": "Expenditures", "description": "Payments settling obligations"},
        {"name": "Analytics", "description": "Variance analysis"},
        {"name": "Reports", "description": "Async report generation"},
        {"name": "Notifications", "description": "Per-user notification feed"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appropriations": {
            "get": {
                "tags": ["Appropriations"],
                "summary": "List appropriations",
                "parameters": [
                    {"name": "code", "in": "query", "type": "string"},
                    {"name": "fiscalYear", "in": "query", "type": "integer"},
                    {"name": "type", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Appropriations"],
                "summary": "Register an appropriation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAppropriationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appropriations/check-availability": {
            "post": {
                "tags": ["Appropriations"],
                "summary": "Check fund availability",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/budgets": {
            "get": {
                "tags": ["Budgets"],
                "summary": "List budgets",
                "parameters": [
                    {"name": "fiscalYear", "in": "query", "type": "integer"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "ownerId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Budgets"],
                "summary": "Create a draft budget",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBudgetRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/budgets/{id}/submit": {
            "post": {
                "tags": ["Budgets"],
                "summary": "Submit a budget for approval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/approvals/requests/{id}/decision": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Record an approve or reject decision",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/obligations": {
            "post": {
                "tags": ["Obligations"],
                "summary": "Record an obligation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateObligationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient funds", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/expenditures": {
            "post": {
                "tags": ["Expenditures"],
                "summary": "Record a payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExpenditureRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/variance/{id}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Planned-versus-actual variance for one budget",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a report for background generation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateAppropriationRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "fiscalYear": {"type": "integer"},
                "type": {"type": "string"},
                "totalAmount": {"type": "string"}
            }
        },
        "CheckAvailabilityRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "fiscalYear": {"type": "integer"},
                "amount": {"type": "string"}
            }
        },
        "CreateBudgetRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "fiscalYear": {"type": "integer"},
                "amount": {"type": "string"},
                "appropriationCode": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "decision": {"type": "string"},
                "comments": {"type": "string"}
            }
        },
        "CreateObligationRequest": {
            "type": "object",
            "properties": {
                "budgetId": {"type": "string"},
                "lineItemId": {"type": "string"},
                "amount": {"type": "string"},
                "vendor": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "CreateExpenditureRequest": {
            "type": "object",
            "properties": {
                "budgetId": {"type": "string"},
                "obligationId": {"type": "string"},
                "amount": {"type": "string"},
                "paymentDate": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "ReportRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "budgetId": {"type": "string"},
                "fiscalYear": {"type": "integer"},
                "format": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
