package constants

const (
	// log field names for the request scoped logger
	LOG_REQUEST_ID = "request_id"
	LOG_METHOD     = "method"
	LOG_URI        = "uri"
	LOG_USER_AGENT = "user_agent"
	LOG_REMOTE_ADR = "remote_addr"
	LOG_USER       = "remote_user"
	LOG_REFERER    = "referer"

	// log field names for the run scoped logger
	LOG_PROJECT      = "project"
	LOG_RUN_ID       = "run_id"
	LOG_SCENARIO_ID  = "scenario_id"
	LOG_PERSONA_ID   = "persona_id"
	LOG_CONNECTOR_ID = "connector_id"
	LOG_EVAL_ID      = "eval_id"
	LOG_THREAD_ID    = "thread_id"
	LOG_TURN         = "turn"

	// path parameters
	PATH_PARAMETER_PROJECT    = "project"
	PATH_PARAMETER_RUN_ID     = "run_id"
	PATH_PARAMETER_EVAL_ID    = "eval_id"
	PATH_PARAMETER_COLLECTION = "collection"
	PATH_PARAMETER_RECORD_ID  = "record_id"

	// query parameters
	QUERY_PARAMETER_STATUS       = "status"
	QUERY_PARAMETER_EVAL_ID      = "eval_id"
	QUERY_PARAMETER_EXECUTION_ID = "execution_id"
	QUERY_PARAMETER_SCENARIO_ID  = "scenario_id"
	QUERY_PARAMETER_LIMIT        = "limit"
	QUERY_PARAMETER_OFFSET       = "offset"

	DEFAULT_PAGE_LIMIT = 50

	// record collection names
	COLLECTION_SCENARIOS  = "scenarios"
	COLLECTION_PERSONAS   = "personas"
	COLLECTION_CONNECTORS = "connectors"
	COLLECTION_EVALS      = "evals"
	COLLECTION_RUNS       = "runs"
	COLLECTION_EXECUTIONS = "executions"

	// environment variables
	EnvVarTerminationFile = "TERMINATION_FILE"
	EnvVarConfigPath      = "CONFIG_PATH"

	SERVICE_NAME = "sim-hub"
)
