package outbox

const goalReachedSchema = `{
  "type": "object",
  "title": "StepGoalReached",
  "properties": {
    "user_id": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "steps": {"type": "integer"},
    "target": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "day", "steps", "target", "occurred_at"],
  "additionalProperties": false
}`

const dayClosedSchema = `{
  "type": "object",
  "title": "StepDayClosed",
  "properties": {
    "user_id": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "steps": {"type": "integer"},
    "distance_km": {"type": "number"},
    "calories": {"type": "integer"},
    "target_hit": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "day", "steps", "distance_km", "calories", "target_hit", "occurred_at"],
  "additionalProperties": false
}`
