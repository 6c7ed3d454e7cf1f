package javasrc

// jdkTypes lists the platform types the generator can resolve through
// on-demand imports. Other java.* wildcards never match, since a library
// type cannot live in a platform package.
var jdkTypes = map[string][]string{
	"java.lang": {
		"AutoCloseable", "ArithmeticException", "ArrayIndexOutOfBoundsException", "Boolean", "Byte",
		"CharSequence", "Character", "Class", "ClassCastException", "ClassNotFoundException",
		"Cloneable", "Comparable", "Deprecated", "Double", "Enum", "Error", "Exception", "Float",
		"FunctionalInterface", "IllegalArgumentException", "IllegalStateException",
		"IndexOutOfBoundsException", "Integer", "InterruptedException", "Iterable", "Long", "Math",
		"NullPointerException", "Number", "NumberFormatException", "Object", "Override", "Process",
		"Record", "Runnable", "RuntimeException", "SafeVarargs", "Short", "StackTraceElement",
		"String", "StringBuffer", "StringBuilder", "SuppressWarnings", "System", "Thread",
		"ThreadLocal", "Throwable", "UnsupportedOperationException", "Void",
	},
	"java.util": {
		"AbstractList", "AbstractMap", "ArrayDeque", "ArrayList", "Arrays", "BitSet", "Calendar",
		"Collection", "Collections", "Comparator", "Date", "Deque", "EnumMap", "EnumSet",
		"Enumeration", "HashMap", "HashSet", "Hashtable", "Iterator", "LinkedHashMap",
		"LinkedHashSet", "LinkedList", "List", "ListIterator", "Locale", "Map", "NavigableMap",
		"NavigableSet", "NoSuchElementException", "Objects", "Optional", "PriorityQueue",
		"Properties", "Queue", "Random", "ResourceBundle", "Scanner", "Set", "SortedMap",
		"SortedSet", "Stack", "StringJoiner", "TreeMap", "TreeSet", "UUID", "Vector",
		"WeakHashMap",
	},
	"java.util.function": {
		"BiConsumer", "BiFunction", "BiPredicate", "BinaryOperator", "BooleanSupplier", "Consumer",
		"DoubleFunction", "Function", "IntFunction", "IntPredicate", "Predicate", "Supplier",
		"ToIntFunction", "UnaryOperator",
	},
	"java.util.stream": {"Collector", "Collectors", "IntStream", "Stream"},
	"java.util.logging": {
		"ConsoleHandler", "Filter", "Formatter", "Handler", "Level", "LogManager", "LogRecord",
		"Logger",
	},
	"java.util.concurrent": {
		"Callable", "CompletableFuture", "ConcurrentHashMap", "ConcurrentMap", "CopyOnWriteArrayList",
		"ExecutorService", "Executors", "Future", "TimeUnit",
	},
	"java.util.regex": {"Matcher", "Pattern"},
	"java.io": {
		"BufferedReader", "BufferedWriter", "Closeable", "File", "FileInputStream",
		"FileNotFoundException", "FileOutputStream", "FileReader", "FileWriter", "IOException",
		"InputStream", "InputStreamReader", "ObjectInputStream", "ObjectOutputStream",
		"OutputStream", "PrintStream", "PrintWriter", "Reader", "Serializable",
		"UncheckedIOException", "Writer",
	},
	"java.lang.reflect": {
		"Array", "Constructor", "Field", "InvocationTargetException", "Method", "Modifier",
		"ParameterizedType", "Type",
	},
	"java.nio.file": {"Files", "Path", "Paths", "StandardOpenOption"},
	"java.net":      {"URI", "URL", "URISyntaxException"},
	"java.time":     {"Duration", "Instant", "LocalDate", "LocalDateTime", "ZonedDateTime"},
}

var jdkIndex = func() map[string]map[string]bool {
	idx := make(map[string]map[string]bool, len(jdkTypes))
	for pkg, names := range jdkTypes {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		idx[pkg] = set
	}
	return idx
}()

var primitives = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true, "void": true,
}
