package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Slot API",
        "description": "Plans recurring oral exams for course sections and audits every slot change.",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Scheduling",
            "description": "Generation runs and exports"
        },
        {
            "name": "Exam Slots",
            "description": "Audited slot edits"
        },
        {
            "name": "Calendar",
            "description": "Signed student calendar feeds"
        },
        {
            "name": "Metrics",
            "description": "Runtime statistics"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Metrics snapshot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/calendar/students/{token}/exams.ics": {
            "get": {
                "tags": [
                    "Calendar"
                ],
                "summary": "Public student exam calendar",
                "produces": [
                    "text/calendar"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "VCALENDAR feed"
                    },
                    "401": {
                        "description": "Invalid or expired link",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{courseId}/schedule/generate": {
            "post": {
                "tags": [
                    "Scheduling"
                ],
                "summary": "Generate exam slots for a course",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "courseId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "async",
                        "in": "query",
                        "required": false,
                        "type": "boolean"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/GenerateScheduleRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Invalid configuration",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/schedule-runs/{runId}": {
            "get": {
                "tags": [
                    "Scheduling"
                ],
                "summary": "Get an asynchronous generation run",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "runId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{studentId}/schedule/regenerate": {
            "post": {
                "tags": [
                    "Scheduling"
                ],
                "summary": "Re-place one student from an exam onwards",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RegenerateStudentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{courseId}/schedule/export.xlsx": {
            "get": {
                "tags": [
                    "Scheduling"
                ],
                "summary": "Download the course schedule as an Excel workbook",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "courseId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{courseId}/schedule/export.csv": {
            "get": {
                "tags": [
                    "Scheduling"
                ],
                "summary": "Download the course schedule as CSV",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "courseId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{courseId}/exam-slots": {
            "get": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "List live exam slots",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "courseId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "examNumber",
                        "in": "query",
                        "required": false,
                        "type": "integer"
                    },
                    {
                        "name": "sectionId",
                        "in": "query",
                        "required": false,
                        "type": "string"
                    },
                    {
                        "name": "scheduled",
                        "in": "query",
                        "required": false,
                        "type": "boolean"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{courseId}/exam-slots/bulk-unlock": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Unlock an exam's slots",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "courseId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkUnlockRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{courseId}/exam-slots/auto-lock": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Lock every scheduled slot on a date",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "courseId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/AutoLockRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/exam-slots/{id}/lock": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Lock a slot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/exam-slots/{id}/unlock": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Unlock a slot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/exam-slots/swap": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Swap the timing of two slots",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SwapSlotsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "423": {
                        "description": "Locked",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/exam-slots/{id}/schedule": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Pin a slot to a date and interval",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ManualScheduleRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "423": {
                        "description": "Locked",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{studentId}/exams/{examNumber}/history": {
            "get": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "History of a student's exam slot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "examNumber",
                        "in": "path",
                        "required": true,
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/exam-slot-histories/{id}/revert": {
            "post": {
                "tags": [
                    "Exam Slots"
                ],
                "summary": "Restore a slot from a history entry",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "423": {
                        "description": "Locked",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{studentId}/calendar-link": {
            "get": {
                "tags": [
                    "Calendar"
                ],
                "summary": "Issue a signed calendar feed URL",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "GenerateScheduleRequest": {
            "type": "object",
            "properties": {
                "startDate": {
                    "type": "string",
                    "format": "date"
                },
                "startingExam": {
                    "type": "integer"
                },
                "sectionIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "config": {
                    "type": "object"
                }
            }
        },
        "RegenerateStudentRequest": {
            "type": "object",
            "required": [
                "fromExam"
            ],
            "properties": {
                "fromExam": {
                    "type": "integer"
                }
            }
        },
        "SwapSlotsRequest": {
            "type": "object",
            "required": [
                "firstSlotId",
                "secondSlotId"
            ],
            "properties": {
                "firstSlotId": {
                    "type": "string"
                },
                "secondSlotId": {
                    "type": "string"
                },
                "reason": {
                    "type": "string"
                }
            }
        },
        "ManualScheduleRequest": {
            "type": "object",
            "required": [
                "date",
                "startTime",
                "endTime"
            ],
            "properties": {
                "date": {
                    "type": "string",
                    "format": "date"
                },
                "startTime": {
                    "type": "string",
                    "example": "13:30"
                },
                "endTime": {
                    "type": "string",
                    "example": "13:37"
                },
                "reason": {
                    "type": "string"
                }
            }
        },
        "BulkUnlockRequest": {
            "type": "object",
            "required": [
                "examNumber"
            ],
            "properties": {
                "examNumber": {
                    "type": "integer"
                },
                "weekGroup": {
                    "type": "string",
                    "enum": [
                        "A",
                        "B"
                    ]
                }
            }
        },
        "AutoLockRequest": {
            "type": "object",
            "properties": {
                "date": {
                    "type": "string",
                    "format": "date"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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
