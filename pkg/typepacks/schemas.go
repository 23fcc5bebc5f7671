package typepacks

// Embedded JSON Schema documents used for structural validation of each
// artifact type's content, ahead of the hand-written semantic checks in
// Validate. Schemas are intentionally permissive on open-ended maps
// (payload, params) since those are shaped by the handler, not the pack.

const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["operation", "payload"],
  "properties": {
    "operation": {"type": "string", "minLength": 1},
    "payload": {"type": "object"},
    "inputs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["artifact_id", "content_id"],
        "properties": {
          "artifact_id": {"type": "string", "minLength": 1},
          "content_id": {"type": "string", "minLength": 1}
        }
      }
    },
    "delegate_to": {"type": "string"}
  }
}`

const approvalSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["target_artifact_id", "approved_content_ids", "scope", "approver"],
  "properties": {
    "target_artifact_id": {"type": "string", "minLength": 1},
    "approved_content_ids": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "scope": {"type": "string"},
    "approver": {"type": "string", "minLength": 1},
    "force_ack": {"type": "boolean"}
  }
}`

const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "operation", "timestamp", "artifacts", "repro"],
  "properties": {
    "version": {"const": "bundle@v1"},
    "operation": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "minLength": 1},
    "artifacts": {
      "type": "object",
      "required": ["plan", "result"],
      "properties": {
        "plan": {"type": "string", "minLength": 1},
        "approval": {"type": "string"},
        "result": {"type": "string", "minLength": 1}
      }
    },
    "repro": {
      "type": "object",
      "required": ["surface", "engine_version"],
      "properties": {
        "surface": {"type": "string"},
        "engine_version": {"type": "string"}
      }
    }
  }
}`
