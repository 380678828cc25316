// Package httpapp provides the HTTP API for the voice diary service.
//
//	@title						Voice Diary API
//	@version					1.0
//	@description				Turns transcribed voice memos into markdown diary entries, generates a matching image, and cross-posts both to Instagram, Threads and Bluesky.
//	@description
//	@description				## Authentication
//	@description
//	@description				Every endpoint except `/api/generate-image` requires an admin bearer token:
//	@description				```bash
//	@description				curl -X POST /api/create-diary -H "Authorization: Bearer TOKEN" -d '{"text":"..."}'
//	@description				```
//	@description				Mint a token with `voicediaryd token`. Image generation instead takes the
//	@description				short-lived `imageToken` returned by a successful create-diary call, so the
//	@description				follow-up request needs no admin credential.
//	@description
//	@description				## Daily Quotas
//	@description
//	@description				Each action has a per-IP daily limit enforced through a shared counter
//	@description				store. Over-limit requests get 429 with a Retry-After header. If the
//	@description				store is unreachable the service fails closed and answers 500.
//	@description
//	@description				## Idempotency
//	@description
//	@description				Posting endpoints record the platform post id per date. Repeating a
//	@description				request for an already posted date returns 200 with `alreadyPosted`
//	@description				set instead of posting twice; a concurrent duplicate gets 409.
//
//	@contact.name				Voice Diary
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Admin JWT from the voicediaryd token command
//
//	@tag.name					diary
//	@tag.description			Create entries from raw text and generate their images. Entries live as markdown files in a GitHub repository.
//
//	@tag.name					posting
//	@tag.description			Cross-post an entry's image and caption to social platforms. One post per platform per date.
package httpapp
