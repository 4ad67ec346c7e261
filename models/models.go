package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// Database schema overview:
// 1. users - cookie-authenticated accounts
// 2. refresh_tokens - hashed long-lived tokens backing the auth cookies
// 3. interviews - one row per mock-interview attempt; questions, answers and
//    feedback live in JSON columns on the row so the record behaves like a
//    single document
